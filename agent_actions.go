package audition

import (
	"context"
	"errors"
	"fmt"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/query"
	"github.com/tjddyd55-crypto/global-audition/session"
)

// userScopedKeys hold data of the signed in account. The tracker drops them on every token change.
var userScopedKeys = []query.Key{
	query.K(keyMyApplications),
	query.K(keyMyAuditions),
	query.K(keyPoints),
	query.K(keyMyAssets),
	query.K(keyApplications),
}

func (a *Agent) invalidate(ctx context.Context, keys ...query.Key) {
	for _, key := range keys {
		a.queries.Invalidate(ctx, key)
	}
}

func (a *Agent) signIn(ctx context.Context, resp api.AuthResponse) (api.AuthResponse, error) {
	if err := a.tracker.SignIn(a.Context(ctx), resp.Token, resp.UserType); err != nil {
		return resp, fmt.Errorf("store session: %w", err)
	}
	return resp, nil
}

// Login signs in with email and password and stores the session.
func (a *Agent) Login(ctx context.Context, req api.LoginRequest) (api.AuthResponse, error) {
	a.touch()
	resp, err := a.api.Auth.Login(a.Context(ctx), req)
	if err != nil {
		return resp, err
	}
	return a.signIn(ctx, resp)
}

// SocialLogin exchanges a provider token and stores the session.
func (a *Agent) SocialLogin(ctx context.Context, provider api.Provider, accessToken string, userType session.Role) (api.AuthResponse, error) {
	a.touch()
	resp, err := a.api.Auth.SocialLogin(a.Context(ctx), provider, accessToken, userType)
	if err != nil {
		return resp, err
	}
	return a.signIn(ctx, resp)
}

// Register creates an account and signs in with it.
func (a *Agent) Register(ctx context.Context, req api.RegisterRequest) (api.AuthResponse, error) {
	a.touch()
	resp, err := a.api.Auth.Register(a.Context(ctx), req)
	if err != nil {
		return resp, err
	}
	return a.signIn(ctx, resp)
}

// Logout removes the session and the account's cached data.
func (a *Agent) Logout(ctx context.Context) error {
	a.touch()
	return a.tracker.SignOut(a.Context(ctx))
}

// Apply submits an application. A second application to the same audition fails with ErrAlreadyApplied.
func (a *Agent) Apply(ctx context.Context, auditionID string) (api.Application, error) {
	a.touch()
	app, err := a.api.Applications.Apply(a.Context(ctx), auditionID)
	if err != nil {
		if errors.Is(err, client.ErrConflict) {
			return app, fmt.Errorf("%w: %w", ErrAlreadyApplied, err)
		}
		return app, err
	}
	a.invalidate(ctx,
		query.K(keyAudition, auditionID),
		query.K(keyApplications, auditionID),
		query.K(keyMyApplications))
	return app, nil
}

// Accept accepts an application to one of the agent's auditions.
func (a *Agent) Accept(ctx context.Context, auditionID, applicationID string) (api.Application, error) {
	return a.review(ctx, auditionID, applicationID, a.api.Applications.Accept)
}

// Reject rejects an application to one of the agent's auditions.
func (a *Agent) Reject(ctx context.Context, auditionID, applicationID string) (api.Application, error) {
	return a.review(ctx, auditionID, applicationID, a.api.Applications.Reject)
}

func (a *Agent) review(
	ctx context.Context,
	auditionID, applicationID string,
	decide func(context.Context, string) (api.Application, error),
) (api.Application, error) {
	a.touch()
	app, err := decide(a.Context(ctx), applicationID)
	if err != nil {
		return app, err
	}
	if auditionID == "" {
		auditionID = app.AuditionID
	}
	a.invalidate(ctx, query.K(keyApplications, auditionID), query.K(keyMyAuditions))
	return app, nil
}

// CreateAudition opens an audition for an agency account.
func (a *Agent) CreateAudition(ctx context.Context, req api.CreateAuditionRequest) (api.Audition, error) {
	a.touch()
	if a.Role(ctx) != session.RoleBusiness {
		return api.Audition{}, ErrBusinessOnly
	}
	created, err := a.api.Auditions.Create(a.Context(ctx), req)
	if err != nil {
		return created, err
	}
	a.invalidate(ctx, query.K(keyAuditions), query.K(keyMyAuditions))
	return created, nil
}

// DeleteAudition is not offered by the backend and always fails with api.ErrDeleteUnsupported.
func (a *Agent) DeleteAudition(ctx context.Context, id string) error {
	a.touch()
	return a.api.Auditions.Delete(a.Context(ctx), id)
}

// Topup creates a payment intent for points.
func (a *Agent) Topup(ctx context.Context, points int64) (api.TopupIntent, error) {
	a.touch()
	intent, err := a.api.Points.Topup(a.Context(ctx), points)
	if err != nil {
		return intent, err
	}
	a.invalidate(ctx, query.K(keyPoints))
	return intent, nil
}

// CreateAsset registers a vault work.
func (a *Agent) CreateAsset(ctx context.Context, upload api.AssetUpload) (api.Asset, error) {
	a.touch()
	asset, err := a.api.Vault.CreateAsset(a.Context(ctx), upload)
	if err != nil {
		return asset, err
	}
	a.invalidate(ctx, query.K(keyMyAssets))
	return asset, nil
}

// CreateFeedback evaluates an asset.
func (a *Agent) CreateFeedback(ctx context.Context, req api.CreateFeedbackRequest) (api.Feedback, error) {
	a.touch()
	fb, err := a.api.Feedback.Create(a.Context(ctx), req)
	if err != nil {
		return fb, err
	}
	a.invalidate(ctx, query.K(keyFeedback, req.AssetID))
	return fb, nil
}

// CreateVideo registers a showcase video.
func (a *Agent) CreateVideo(ctx context.Context, video api.Video) (api.Video, error) {
	a.touch()
	created, err := a.api.Videos.Create(a.Context(ctx), video)
	if err != nil {
		return created, err
	}
	a.invalidate(ctx, query.K(keyVideos, created.UserID))
	return created, nil
}

// LikeVideo likes a video and refreshes its owner's list.
func (a *Agent) LikeVideo(ctx context.Context, id int64) (api.Video, error) {
	a.touch()
	video, err := a.api.Videos.Like(a.Context(ctx), id)
	if err != nil {
		return video, err
	}
	a.invalidate(ctx, query.K(keyVideos, video.UserID))
	return video, nil
}

package audition

import (
	"context"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/query"
	"github.com/tjddyd55-crypto/global-audition/session"
)

// Query key roots. Mutations invalidate by these prefixes.
const (
	keyAuditions      = "auditions"
	keyAudition       = "audition"
	keyApplications   = "applications"
	keyMyApplications = "myApplications"
	keyMyAuditions    = "myAuditions"
	keyPoints         = "points"
	keyMyAssets       = "myAssets"
	keyVideos         = "videos"
	keyFeedback       = "feedback"
)

// CurrentUser returns the signed in user's profile, cached under ["currentUser"].
func (a *Agent) CurrentUser(ctx context.Context) (api.UserProfile, error) {
	a.touch()
	if !a.Authenticated() {
		return api.UserProfile{}, ErrNotSignedIn
	}
	return query.Fetch(a.Context(ctx), a.queries, session.CurrentUserKey, a.api.Auth.Me)
}

// Auditions lists the public auditions matching filter.
func (a *Agent) Auditions(ctx context.Context, filter api.AuditionFilter) ([]api.Audition, error) {
	a.touch()
	key := query.K(keyAuditions, filter.Category, filter.Status)
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) ([]api.Audition, error) {
		return a.api.Auditions.List(ctx, filter)
	})
}

// Audition returns one audition.
func (a *Agent) Audition(ctx context.Context, id string) (api.Audition, error) {
	a.touch()
	return query.Fetch(a.Context(ctx), a.queries, query.K(keyAudition, id), func(ctx context.Context) (api.Audition, error) {
		return a.api.Auditions.Get(ctx, id)
	})
}

// Applications lists the applications to an audition the agent owns.
func (a *Agent) Applications(ctx context.Context, auditionID string) ([]api.Application, error) {
	a.touch()
	key := query.K(keyApplications, auditionID)
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) ([]api.Application, error) {
		return a.api.Applications.ListByAudition(ctx, auditionID)
	})
}

// MyApplications lists the agent's own applications.
func (a *Agent) MyApplications(ctx context.Context) ([]api.Application, error) {
	a.touch()
	if !a.Authenticated() {
		return nil, ErrNotSignedIn
	}
	return query.Fetch(a.Context(ctx), a.queries, query.K(keyMyApplications), a.api.Applications.ListMine)
}

// MyAuditions lists the auditions the agent's account owns.
func (a *Agent) MyAuditions(ctx context.Context) (api.MyAuditions, error) {
	a.touch()
	if !a.Authenticated() {
		return api.MyAuditions{}, ErrNotSignedIn
	}
	return query.Fetch(a.Context(ctx), a.queries, query.K(keyMyAuditions), a.api.Auditions.Mine)
}

// DashboardStats summarises the agency dashboard.
func (a *Agent) DashboardStats(ctx context.Context) (api.DashboardStats, error) {
	a.touch()
	if !a.Authenticated() {
		return api.DashboardStats{}, ErrNotSignedIn
	}
	key := query.K(keyMyAuditions, "stats")
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) (api.DashboardStats, error) {
		return a.api.Auditions.DashboardStats(ctx, a.api.Applications)
	})
}

// Wallet is the point balance with the latest transactions.
type Wallet struct {
	Balance      int64                     `json:"balance"`
	Transactions api.Page[api.Transaction] `json:"transactions"`
}

// Wallet returns the point balance and one page of transactions.
func (a *Agent) Wallet(ctx context.Context, page api.PageRequest) (Wallet, error) {
	a.touch()
	if !a.Authenticated() {
		return Wallet{}, ErrNotSignedIn
	}
	ctx = a.Context(ctx)

	balance, err := query.Fetch(ctx, a.queries, query.K(keyPoints, "balance"), a.api.Points.Balance)
	if err != nil {
		return Wallet{}, err
	}

	key := query.K(keyPoints, "transactions", page.Page, page.Size)
	txs, err := query.Fetch(ctx, a.queries, key, func(ctx context.Context) (api.Page[api.Transaction], error) {
		return a.api.Points.Transactions(ctx, page)
	})
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{Balance: balance, Transactions: txs}, nil
}

// MyAssets returns a page of the agent's vault works.
func (a *Agent) MyAssets(ctx context.Context, page api.PageRequest) (api.Page[api.Asset], error) {
	a.touch()
	if !a.Authenticated() {
		return api.Page[api.Asset]{}, ErrNotSignedIn
	}
	key := query.K(keyMyAssets, page.Page, page.Size)
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) (api.Page[api.Asset], error) {
		return a.api.Vault.MyAssets(ctx, page)
	})
}

// Feedback returns a page of evaluations of one asset.
func (a *Agent) Feedback(ctx context.Context, assetID int64, page api.PageRequest) (api.Page[api.Feedback], error) {
	a.touch()
	key := query.K(keyFeedback, assetID, page.Page, page.Size)
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) (api.Page[api.Feedback], error) {
		return a.api.Feedback.ByAsset(ctx, assetID, page)
	})
}

// Videos returns a page of videos, optionally of one user.
func (a *Agent) Videos(ctx context.Context, q api.VideoQuery) (api.Page[api.Video], error) {
	a.touch()
	key := query.K(keyVideos, q.UserID, q.Page, q.Size, q.Sort)
	return query.Fetch(a.Context(ctx), a.queries, key, func(ctx context.Context) (api.Page[api.Video], error) {
		return a.api.Videos.List(ctx, q)
	})
}

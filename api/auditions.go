package api

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tjddyd55-crypto/global-audition/client"
)

const myAuditionsPageSize = 20

// ErrDeleteUnsupported is returned by AuditionAPI.Delete, the backend has no delete endpoint.
var ErrDeleteUnsupported = fmt.Errorf("%w: audition delete", client.ErrNotImplemented)

// Audition is one casting call.
type Audition struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"ownerId"`
	Title        string  `json:"title"`
	TitleEn      string  `json:"titleEn,omitempty"`
	Description  *string `json:"description"`
	Status       string  `json:"status"`
	Category     string  `json:"category,omitempty"`
	BusinessName string  `json:"businessName,omitempty"`
	StartDate    string  `json:"startDate,omitempty"`
	EndDate      string  `json:"endDate,omitempty"`
	PosterURL    string  `json:"posterUrl,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

// AuditionFilter narrows the public list, empty fields are not sent.
type AuditionFilter struct {
	Category string
	Status   string
}

// CreateAuditionRequest opens a new casting call.
type CreateAuditionRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
}

// MyAuditions is the owner's list with a page count derived client side.
type MyAuditions struct {
	Content    []Audition `json:"content"`
	TotalPages int        `json:"totalPages"`
}

// DashboardStats summarises an agency's auditions.
type DashboardStats struct {
	TotalAuditions  int `json:"totalAuditions"`
	TotalApplicants int `json:"totalApplicants"`
}

// AuditionAPI covers /auditions.
type AuditionAPI struct {
	c *client.Client
}

// List returns the public auditions.
func (a *AuditionAPI) List(ctx context.Context, filter AuditionFilter) ([]Audition, error) {
	q := url.Values{}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	return get[[]Audition](ctx, a.c, "/auditions", q)
}

// Get returns one audition.
func (a *AuditionAPI) Get(ctx context.Context, id string) (Audition, error) {
	return get[Audition](ctx, a.c, "/auditions/"+escape(id), nil)
}

// Create opens an audition. Only BUSINESS accounts are accepted by the backend.
func (a *AuditionAPI) Create(ctx context.Context, req CreateAuditionRequest) (Audition, error) {
	if req.Title == "" {
		return Audition{}, FieldErrors{"title": "validation.required"}
	}
	return post[Audition](ctx, a.c, "/auditions", req)
}

// Mine lists the auditions owned by the signed in account. The backend does not page it.
func (a *AuditionAPI) Mine(ctx context.Context) (MyAuditions, error) {
	list, err := get[[]Audition](ctx, a.c, "/auditions/mine", nil)
	if err != nil {
		return MyAuditions{}, err
	}
	if list == nil {
		list = []Audition{}
	}
	pages := max(1, (len(list)+myAuditionsPageSize-1)/myAuditionsPageSize)
	return MyAuditions{Content: list, TotalPages: pages}, nil
}

// DashboardStats counts owned auditions and their applicants.
// Auditions whose applications cannot be listed are skipped, except on a rejected session.
func (a *AuditionAPI) DashboardStats(ctx context.Context, applications *ApplicationAPI) (DashboardStats, error) {
	mine, err := a.Mine(ctx)
	if err != nil {
		return DashboardStats{}, err
	}

	stats := DashboardStats{TotalAuditions: len(mine.Content)}
	for _, audition := range mine.Content {
		list, listErr := applications.ListByAudition(ctx, audition.ID)
		if listErr != nil {
			if errors.Is(listErr, client.ErrUnauthorized) || ctx.Err() != nil {
				return DashboardStats{}, listErr
			}
			continue
		}
		stats.TotalApplicants += len(list)
	}
	return stats, nil
}

// Delete always fails with ErrDeleteUnsupported.
func (a *AuditionAPI) Delete(_ context.Context, _ string) error {
	return ErrDeleteUnsupported
}

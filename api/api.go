// Package api wraps the backend REST endpoints the frontend uses.
package api

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/tjddyd55-crypto/global-audition/client"
)

// API groups the endpoint wrappers over one shared client.
type API struct {
	c *client.Client

	Auth         *AuthAPI
	Auditions    *AuditionAPI
	Applications *ApplicationAPI
	Videos       *VideoAPI
	Vault        *VaultAPI
	Feedback     *FeedbackAPI
	Points       *PointsAPI
	Health       *HealthAPI
}

// New binds every wrapper to c.
func New(c *client.Client) *API {
	return &API{
		c:            c,
		Auth:         &AuthAPI{c: c},
		Auditions:    &AuditionAPI{c: c},
		Applications: &ApplicationAPI{c: c},
		Videos:       &VideoAPI{c: c},
		Vault:        &VaultAPI{c: c},
		Feedback:     &FeedbackAPI{c: c},
		Points:       &PointsAPI{c: c},
		Health:       &HealthAPI{c: c},
	}
}

// Client returns the underlying API client.
func (a *API) Client() *client.Client {
	return a.c
}

// Page is the backend's paged list envelope.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Page          int   `json:"page"`
	Size          int   `json:"size"`
}

// PageRequest selects one page, zero values are left to the backend.
type PageRequest struct {
	Page int
	Size int
}

func (p PageRequest) values() url.Values {
	v := url.Values{}
	if p.Page > 0 {
		v.Set("page", strconv.Itoa(p.Page))
	}
	if p.Size > 0 {
		v.Set("size", strconv.Itoa(p.Size))
	}
	return v
}

// FieldErrors maps request fields to localization message ids. It is returned before
// a request is sent when input fails client side checks.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("invalid input: ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
	}
	return b.String()
}

// Is lets callers treat client side and backend validation failures alike.
func (f FieldErrors) Is(target error) bool {
	return target == client.ErrValidation
}

func (f FieldErrors) orNil() error {
	if len(f) == 0 {
		return nil
	}
	return f
}

func escape(id string) string {
	return url.PathEscape(id)
}

func get[T any](ctx context.Context, c *client.Client, path string, query url.Values) (T, error) {
	var out T
	err := c.Get(ctx, path, query, &out)
	return out, err
}

func post[T any](ctx context.Context, c *client.Client, path string, body any) (T, error) {
	var out T
	err := c.Post(ctx, path, body, &out)
	return out, err
}

package api

import (
	"context"
	"net/http"

	"github.com/tjddyd55-crypto/global-audition/client"
)

// ApplicationStatus is the review state of an application.
type ApplicationStatus string

const (
	StatusSubmitted ApplicationStatus = "SUBMITTED"
	StatusReviewed  ApplicationStatus = "REVIEWED"
	StatusAccepted  ApplicationStatus = "ACCEPTED"
	StatusRejected  ApplicationStatus = "REJECTED"
)

// Application is an applicant's entry into an audition.
type Application struct {
	ID             string            `json:"id"`
	AuditionID     string            `json:"auditionId"`
	AuditionTitle  string            `json:"auditionTitle,omitempty"`
	ApplicantID    string            `json:"applicantId"`
	ApplicantEmail *string           `json:"applicantEmail"`
	Status         ApplicationStatus `json:"status"`
	CreatedAt      string            `json:"createdAt"`
}

// ApplicationAPI covers /applications and the audition scoped application routes.
type ApplicationAPI struct {
	c *client.Client
}

// ListMine returns the signed in applicant's applications.
func (a *ApplicationAPI) ListMine(ctx context.Context) ([]Application, error) {
	return get[[]Application](ctx, a.c, "/applications/me", nil)
}

// Apply submits an application. Applying twice fails with client.ErrConflict.
func (a *ApplicationAPI) Apply(ctx context.Context, auditionID string) (Application, error) {
	return post[Application](ctx, a.c, "/auditions/"+escape(auditionID)+"/apply", nil)
}

// ListByAudition returns the applications to one audition, for its owner.
func (a *ApplicationAPI) ListByAudition(ctx context.Context, auditionID string) ([]Application, error) {
	return get[[]Application](ctx, a.c, "/auditions/"+escape(auditionID)+"/applications", nil)
}

// UpdateStatus moves an application to status.
func (a *ApplicationAPI) UpdateStatus(ctx context.Context, applicationID string, status ApplicationStatus) (Application, error) {
	switch status {
	case StatusReviewed, StatusAccepted, StatusRejected:
	default:
		return Application{}, FieldErrors{"status": "validation.required"}
	}

	var out Application
	err := a.c.Do(ctx, client.Request{
		Method: http.MethodPatch,
		Path:   "/applications/" + escape(applicationID) + "/status",
		Body:   map[string]ApplicationStatus{"status": status},
	}, &out)
	return out, err
}

// Accept is UpdateStatus with ACCEPTED.
func (a *ApplicationAPI) Accept(ctx context.Context, applicationID string) (Application, error) {
	return a.UpdateStatus(ctx, applicationID, StatusAccepted)
}

// Reject is UpdateStatus with REJECTED.
func (a *ApplicationAPI) Reject(ctx context.Context, applicationID string) (Application, error) {
	return a.UpdateStatus(ctx, applicationID, StatusRejected)
}

package api

import (
	"context"
	"fmt"

	"github.com/tjddyd55-crypto/global-audition/client"
)

// Feedback is an expert's evaluation of an asset.
type Feedback struct {
	ID            int64  `json:"id"`
	AssetID       int64  `json:"assetId"`
	EvaluatorID   int64  `json:"evaluatorId"`
	EvaluatorName string `json:"evaluatorName,omitempty"`
	EvaluatorType string `json:"evaluatorType"`
	Rating        *int   `json:"rating,omitempty"`
	Comment       string `json:"comment,omitempty"`
	EvidenceLink  string `json:"evidenceLink,omitempty"`
	IsPublic      *bool  `json:"isPublic,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

// CreateFeedbackRequest evaluates one asset.
type CreateFeedbackRequest struct {
	AssetID      int64  `json:"assetId"`
	Rating       *int   `json:"rating,omitempty"`
	Comment      string `json:"comment,omitempty"`
	EvidenceLink string `json:"evidenceLink,omitempty"`
}

// FeedbackAPI covers /feedback.
type FeedbackAPI struct {
	c *client.Client
}

// Create posts an evaluation.
func (f *FeedbackAPI) Create(ctx context.Context, req CreateFeedbackRequest) (Feedback, error) {
	if req.AssetID <= 0 {
		return Feedback{}, FieldErrors{"assetId": "validation.required"}
	}
	return post[Feedback](ctx, f.c, "/feedback", req)
}

// ByAsset returns a page of evaluations of one asset.
func (f *FeedbackAPI) ByAsset(ctx context.Context, assetID int64, page PageRequest) (Page[Feedback], error) {
	return get[Page[Feedback]](ctx, f.c, fmt.Sprintf("/feedback/asset/%d", assetID), page.values())
}

// Mine returns a page of evaluations the caller wrote.
func (f *FeedbackAPI) Mine(ctx context.Context, page PageRequest) (Page[Feedback], error) {
	return get[Page[Feedback]](ctx, f.c, "/feedback/my", page.values())
}

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/tjddyd55-crypto/global-audition/client"
)

// MaxAssetSize is the largest upload the backend accepts.
const MaxAssetSize = 50 << 20

// Asset is a registered creative work.
type Asset struct {
	ID                   int64  `json:"id"`
	UserID               int64  `json:"userId"`
	Title                string `json:"title"`
	Description          string `json:"description,omitempty"`
	AssetType            string `json:"assetType"`
	FileURL              string `json:"fileUrl,omitempty"`
	TextContent          string `json:"textContent,omitempty"`
	ContentHash          string `json:"contentHash"`
	FileSize             int64  `json:"fileSize,omitempty"`
	MimeType             string `json:"mimeType,omitempty"`
	DeclaredCreationType string `json:"declaredCreationType,omitempty"`
	AccessControl        string `json:"accessControl"`
	RegisteredAt         string `json:"registeredAt"`
	CreatedAt            string `json:"createdAt"`
	UpdatedAt            string `json:"updatedAt,omitempty"`
}

// AssetUpload registers a file or a text work. File is optional when TextContent is set.
type AssetUpload struct {
	File                 io.Reader
	FileName             string
	FileSize             int64
	TextContent          string
	Title                string
	Description          string
	AssetType            string
	DeclaredCreationType string
	AccessControl        string
}

func (u AssetUpload) validate() error {
	errs := FieldErrors{}
	if u.Title == "" {
		errs["title"] = "validation.required"
	}
	if u.AssetType == "" {
		errs["assetType"] = "validation.required"
	}
	if u.AccessControl == "" {
		errs["accessControl"] = "validation.required"
	}
	if u.File == nil && u.TextContent == "" {
		errs["file"] = "validation.required"
	}
	if u.FileSize > MaxAssetSize {
		errs["file"] = "vault.fileTooLarge"
	}
	return errs.orNil()
}

// VaultAPI covers /vault.
type VaultAPI struct {
	c *client.Client
}

// CreateAsset uploads a work as multipart form data.
func (v *VaultAPI) CreateAsset(ctx context.Context, upload AssetUpload) (Asset, error) {
	if err := upload.validate(); err != nil {
		return Asset{}, err
	}

	fields := map[string]string{
		"title":         upload.Title,
		"assetType":     upload.AssetType,
		"accessControl": upload.AccessControl,
	}
	if upload.TextContent != "" {
		fields["textContent"] = upload.TextContent
	}
	if upload.Description != "" {
		fields["description"] = upload.Description
	}
	if upload.DeclaredCreationType != "" {
		fields["declaredCreationType"] = upload.DeclaredCreationType
	}

	form := &client.Multipart{Fields: fields}
	if upload.File != nil {
		form.FileField = "file"
		form.FileName = upload.FileName
		form.File = io.LimitReader(upload.File, MaxAssetSize+1)
	}

	var out Asset
	err := v.c.Do(ctx, client.Request{Method: http.MethodPost, Path: "/vault/assets", Form: form}, &out)
	return out, err
}

// MyAssets returns a page of the caller's works.
func (v *VaultAPI) MyAssets(ctx context.Context, page PageRequest) (Page[Asset], error) {
	return get[Page[Asset]](ctx, v.c, "/vault/assets/my", page.values())
}

// Get returns one work.
func (v *VaultAPI) Get(ctx context.Context, id int64) (Asset, error) {
	return get[Asset](ctx, v.c, fmt.Sprintf("/vault/assets/%d", id), nil)
}

// Batch returns the works with the given ids.
func (v *VaultAPI) Batch(ctx context.Context, ids []int64) ([]Asset, error) {
	if len(ids) == 0 {
		return []Asset{}, nil
	}
	return post[[]Asset](ctx, v.c, "/vault/assets/batch", ids)
}

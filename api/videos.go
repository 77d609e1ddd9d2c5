package api

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tjddyd55-crypto/global-audition/client"
)

// Video is an applicant's showcase clip, usually a YouTube link.
type Video struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"userId"`
	UserName     string `json:"userName,omitempty"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	VideoURL     string `json:"videoUrl"`
	EmbedURL     string `json:"embedUrl,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Duration     int    `json:"duration,omitempty"`
	ViewCount    int64  `json:"viewCount"`
	LikeCount    int64  `json:"likeCount"`
	CommentCount int64  `json:"commentCount"`
	Category     string `json:"category,omitempty"`
	Status       string `json:"status,omitempty"`
	CreatedAt    string `json:"createdAt,omitempty"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

// VideoQuery filters the video list.
type VideoQuery struct {
	PageRequest
	UserID int64
	Sort   string
}

// VideoAPI covers /videos.
type VideoAPI struct {
	c *client.Client
}

// List returns a page of videos.
func (v *VideoAPI) List(ctx context.Context, q VideoQuery) (Page[Video], error) {
	values := q.values()
	if q.UserID > 0 {
		values.Set("userId", strconv.FormatInt(q.UserID, 10))
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
	}
	return get[Page[Video]](ctx, v.c, "/videos", values)
}

// Get returns one video.
func (v *VideoAPI) Get(ctx context.Context, id int64) (Video, error) {
	return get[Video](ctx, v.c, fmt.Sprintf("/videos/%d", id), nil)
}

// Create registers a video.
func (v *VideoAPI) Create(ctx context.Context, video Video) (Video, error) {
	if video.Title == "" || video.VideoURL == "" {
		errs := FieldErrors{}
		if video.Title == "" {
			errs["title"] = "validation.required"
		}
		if video.VideoURL == "" {
			errs["videoUrl"] = "validation.url"
		}
		return Video{}, errs
	}
	return post[Video](ctx, v.c, "/videos", video)
}

// Like adds the caller's like and returns the updated video.
func (v *VideoAPI) Like(ctx context.Context, id int64) (Video, error) {
	return post[Video](ctx, v.c, fmt.Sprintf("/videos/%d/like", id), nil)
}

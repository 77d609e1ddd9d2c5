package api

import (
	"context"
	"strconv"

	"github.com/tjddyd55-crypto/global-audition/client"
)

const transactionsPageSize = 20

// Transaction is one movement of the point balance.
type Transaction struct {
	ID          int64  `json:"id"`
	Type        string `json:"type"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"createdAt"`
}

// TopupIntent is the payment intent created for a top up.
type TopupIntent struct {
	ClientSecret string `json:"clientSecret,omitempty"`
	Points       int64  `json:"points,omitempty"`
}

// PointsAPI covers /points.
type PointsAPI struct {
	c *client.Client
}

// Balance returns the caller's point balance.
func (p *PointsAPI) Balance(ctx context.Context) (int64, error) {
	out, err := get[struct {
		Balance int64 `json:"balance"`
	}](ctx, p.c, "/points/balance", nil)
	return out.Balance, err
}

// Transactions returns the latest movements, first page by default.
func (p *PointsAPI) Transactions(ctx context.Context, page PageRequest) (Page[Transaction], error) {
	q := page.values()
	q.Set("page", strconv.Itoa(page.Page))
	if page.Size == 0 {
		q.Set("size", strconv.Itoa(transactionsPageSize))
	}
	return get[Page[Transaction]](ctx, p.c, "/points/transactions", q)
}

// Topup creates a payment intent for points, which must be at least 1.
func (p *PointsAPI) Topup(ctx context.Context, points int64) (TopupIntent, error) {
	if points < 1 {
		return TopupIntent{}, FieldErrors{"points": "points.topupMinimum"}
	}
	return post[TopupIntent](ctx, p.c, "/points/topup", map[string]int64{"points": points})
}

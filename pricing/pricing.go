package pricing

import (
	"context"
	"time"
)

// Item is one entry of the pricing catalog.
type Item struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	AmountCents int64     `json:"amountCents"`
	Currency    string    `json:"currency"`
	Active      bool      `json:"active"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Patch is a partial update for an Item; nil fields are left untouched.
type Patch struct {
	Name        *string
	Category    *string
	AmountCents *int64
	Currency    *string
	Active      *bool
}

func (p Patch) apply(item *Item) {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.AmountCents != nil {
		item.AmountCents = *p.AmountCents
	}
	if p.Currency != nil {
		item.Currency = *p.Currency
	}
	if p.Active != nil {
		item.Active = *p.Active
	}
}

// FetchFn loads the full pricing catalog from the remote API.
type FetchFn func(ctx context.Context) ([]Item, error)

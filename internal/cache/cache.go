package cache

import (
	"context"
	"time"
)

// Cache stores JSON-encodable values by key. A miss is reported as
// (false, nil).
type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

type Noop struct{}

func (Noop) Get(_ context.Context, _ string, _ any) (bool, error) {
	return false, nil
}

func (Noop) Set(_ context.Context, _ string, _ any, _ time.Duration) error {
	return nil
}

func BusinessKey(businessID string) string {
	return "pos:business:" + businessID
}

func ReceiptKey(token string) string {
	return "pos:receipt:" + token
}

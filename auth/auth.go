package auth

import (
	"context"

	"github.com/sania-talib/api-gateway-project/errors"
)

// KeyStore answers whether an API key is known and active. Unknown keys
// are a verdict (false, nil), not an error; errors mean the store itself
// could not answer.
type KeyStore interface {
	IsActive(ctx context.Context, key string) (bool, error)
}

// Gate is the pipeline's authentication step.
type Gate struct {
	store KeyStore
}

// NewGate builds a gate over the given key store.
func NewGate(store KeyStore) *Gate {
	return &Gate{store: store}
}

// Authenticate reports whether the key may pass. An empty key denies
// immediately without touching the store. A store failure denies
// (fail-closed) and returns the transient error so the caller can log and
// count an outage distinctly from an invalid key.
func (g *Gate) Authenticate(ctx context.Context, apiKey string) (bool, error) {
	if apiKey == "" {
		return false, nil
	}

	active, err := g.store.IsActive(ctx, apiKey)
	if err != nil {
		return false, errors.WrapTransient(err, "auth.Gate", "Authenticate", "key store lookup")
	}
	return active, nil
}

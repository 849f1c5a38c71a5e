// Package memory is the offline learning store: a small key-value collection
// of snippets from earlier sessions, keyed by intent, that the engine may
// recall to steer new requests.
package memory

import (
	"context"
	"time"
)

// Snippet is one remembered piece of session output.
type Snippet struct {
	Key       string    `json:"key"`
	Intent    string    `json:"intent"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the read/write contract. Recent returns snippet texts for one
// intent, newest first, at most limit entries.
type Store interface {
	Put(ctx context.Context, s Snippet) error
	Get(ctx context.Context, key string) (Snippet, bool, error)
	Recent(ctx context.Context, intent string, limit int) ([]string, error)
	Close() error
}

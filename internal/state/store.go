// Package state persists per-user study state: last topic, active quiz,
// saved progress. Data is schemaless JSON per user; writes merge into the
// existing document and stamp last_update. Three backends share the
// contract: plain files (default), sqlite, postgres.
package state

import (
	"context"
	"fmt"
	"time"
)

// LastUpdateKey is stamped into the document on every Put, RFC3339.
const LastUpdateKey = "last_update"

// Store is the per-user state contract. Get returns an empty map for an
// unknown user. Put merges data into the stored document; a key set to nil
// overwrites the stored value with nil rather than deleting it, matching
// what callers expect when clearing a quiz. Every backend serializes the
// read-merge-write of Put per user, so concurrent Puts for one user cannot
// lose keys.
type Store interface {
	Get(ctx context.Context, userID string) (map[string]any, error)
	Put(ctx context.Context, userID string, data map[string]any) error
	Delete(ctx context.Context, userID string) error
	Close() error
}

// Property fetches one key from a user's state. Missing user or key yields
// nil.
func Property(ctx context.Context, s Store, userID, key string) (any, error) {
	data, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return data[key], nil
}

// Options selects and configures a backend.
type Options struct {
	Backend     string // "file", "sqlite" or "postgres"
	Dir         string // file backend
	SQLitePath  string // sqlite backend
	PostgresDSN string // postgres backend
}

// Open builds the configured backend.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "file":
		return NewFileStore(opts.Dir)
	case "sqlite":
		return NewSQLiteStore(opts.SQLitePath)
	case "postgres":
		return NewPostgresStore(opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown state backend %q", opts.Backend)
	}
}

// merge folds src into dst and stamps last_update. dst is the stored
// document, src the incoming patch.
func merge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src)+1)
	}
	for k, v := range src {
		dst[k] = v
	}
	dst[LastUpdateKey] = time.Now().Format(time.RFC3339)
	return dst
}

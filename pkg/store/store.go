// Package store keeps a history of finished bakes.
//
// [MongoStore] backs the API server, [FileStore] keeps a local JSON-lines
// history for the CLI, and [NullStore] discards everything.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get for unknown ids.
var ErrNotFound = errors.New("bake record not found")

// Record summarises one bake.
type Record struct {
	ID        string        `json:"id" bson:"_id"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	Manifest  string        `json:"manifest" bson:"manifest"`
	InputHash string        `json:"input_hash" bson:"input_hash"`
	Inputs    int           `json:"inputs" bson:"inputs"`
	Atlases   int           `json:"atlases" bson:"atlases"`
	Unplaced  int           `json:"unplaced" bson:"unplaced"`
	Cycles    int           `json:"cycles" bson:"cycles"`
	Duration  time.Duration `json:"duration" bson:"duration"`
	Cached    bool          `json:"cached" bson:"cached"`
	Assets    []string      `json:"assets,omitempty" bson:"assets,omitempty"`
}

// Store persists bake records.
type Store interface {
	// Record saves r. Recording an existing id replaces it.
	Record(ctx context.Context, r Record) error
	// Get returns the record with the given id or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns up to limit records, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Record, error)
	Close(ctx context.Context) error
}

// NullStore records nothing.
type NullStore struct{}

// Record does nothing.
func (NullStore) Record(context.Context, Record) error { return nil }

// Get always returns ErrNotFound.
func (NullStore) Get(context.Context, string) (*Record, error) { return nil, ErrNotFound }

// List returns nothing.
func (NullStore) List(context.Context, int) ([]Record, error) { return nil, nil }

// Close does nothing.
func (NullStore) Close(context.Context) error { return nil }

var _ Store = NullStore{}

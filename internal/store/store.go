// Package store persists facility snapshots and terminal-job records.
// Backends treat snapshots as opaque JSON documents keyed by facility id;
// reference data never goes in, only ids the engine revalidates on restore.
package store

import (
	"context"
	"errors"

	"github.com/TickTockBent/DefenseMagnate-sub001/internal/scheduler"
)

// ErrNoSnapshot reports that a facility has never been saved.
var ErrNoSnapshot = errors.New("store: no snapshot for facility")

// Store is the persistence surface the engine drives.
type Store interface {
	// SaveSnapshot upserts the facility's current snapshot.
	SaveSnapshot(ctx context.Context, snap *scheduler.Snapshot) error
	// LoadSnapshot returns the last saved snapshot, or ErrNoSnapshot.
	LoadSnapshot(ctx context.Context, facility string) (*scheduler.Snapshot, error)
	// ListFacilities returns every saved facility id, sorted.
	ListFacilities(ctx context.Context) ([]string, error)
	// AppendArchive records one terminal job for audit.
	AppendArchive(ctx context.Context, facility string, entry scheduler.ArchiveEntry) error
}

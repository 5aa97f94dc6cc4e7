// Package feedcache persists the last-parsed snapshot of each
// operator's GTFS feed so a process restart can skip re-download and
// re-parse of an unchanged feed. Scoped down from tidbyt-gtfs's
// storage.FeedReader/FeedWriter split (a full relational GTFS schema)
// to a single namespaced blob per operator, since the routing
// engine's live representation lives in-memory in timetable.Store per
// spec.md section 3, not in SQL.
package feedcache

import (
	"context"
	"time"
)

// Snapshot is one operator's cached feed: its content hash (so a
// refresh can skip re-parsing an unchanged zip) and the gzip+json
// encoded bundle of parsed stops/trips/routes/shapes.
type Snapshot struct {
	Operator    string
	Hash        string
	RetrievedAt time.Time
	Data        []byte
}

// Store persists Snapshots. Both backends (sqlite, postgres) build
// their SQL with Masterminds/squirrel, matching the query-builder
// pattern other_examples's jfmow-gtfs uses over go-sqlite3.
type Store interface {
	Get(ctx context.Context, operator string) (Snapshot, bool, error)
	Put(ctx context.Context, snap Snapshot) error
	Close() error
}

// Package journal persists poll results and build transitions so triggers
// stay idempotent and auditable across process restarts.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/refpatrol/internal/refs"
)

// ErrNoPolls is returned by LatestPoll when an alias has never been polled.
var ErrNoPolls = errors.New("no polls recorded for alias")

// RootParent marks the first build step record of a chain.
var RootParent = uuid.Nil

// PollRecord is one journaled poll of a target. Previous is set only when the
// poll observed changed references relative to the previous record for the
// alias; it is the chain pointer used to reconstruct what changed since when.
type PollRecord struct {
	ID         uuid.UUID
	Time       time.Time
	URL        string
	Alias      string
	Previous   uuid.UUID
	Refs       refs.Snapshot
	RefFilters []string
}

// TriggerRef is the (refname, commit) pair that triggered a build chain.
type TriggerRef struct {
	Name   string `json:"name"`
	Commit string `json:"commit"`
}

// BuildStepRecord is one transition of a build chain. Two records are written
// per workflow step: a submission snapshot and a completion snapshot. Parent
// links each record to the one before it in the same chain; the first record
// of a chain uses RootParent.
type BuildStepRecord struct {
	ID     uuid.UUID
	Parent uuid.UUID
	PollID uuid.UUID
	Time   time.Time
	Alias  string
	Ref    TriggerRef
	Status json.RawMessage
}

// Store is the journal persistence boundary. All writes are independent
// append-only inserts; implementations must be safe for concurrent use.
type Store interface {
	// LatestPoll returns the most recent PollRecord for an alias, or
	// ErrNoPolls when none exists.
	LatestPoll(ctx context.Context, alias string) (*PollRecord, error)

	// RecordPoll appends a poll record, assigning and returning its id.
	RecordPoll(ctx context.Context, record PollRecord) (uuid.UUID, error)

	// RecordBuildStep appends a build step record, assigning and returning
	// its id.
	RecordBuildStep(ctx context.Context, record BuildStepRecord) (uuid.UUID, error)

	// PollHistory returns up to limit poll records for an alias, newest
	// first.
	PollHistory(ctx context.Context, alias string, limit int) ([]PollRecord, error)

	// BuildSteps returns every build step journaled for a poll, oldest
	// first.
	BuildSteps(ctx context.Context, pollID uuid.UUID) ([]BuildStepRecord, error)

	// Prune deletes journal rows older than the cutoff and reports how
	// many were removed.
	Prune(ctx context.Context, olderThan time.Time) (int64, error)

	Close() error
}

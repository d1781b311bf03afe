// Package storage defines the persistence contracts for the conversion
// service: the durable job queue that drives document conversions and the
// content-addressed artifact store holding published documents and validator
// source. Implementations must keep job leasing atomic so two workers never
// claim the same room.
package storage

import (
	"context"
	"time"

	apperrors "github.com/davidvanstory/MultiplayerGame/internal/platform/errors"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

// Sentinel errors returned by stores.
var (
	// ErrJobNotFound reports that no conversion job exists for the room.
	ErrJobNotFound = apperrors.New(apperrors.CodeRoomNotFound, "conversion job not found")

	// ErrArtifactNotFound reports that no artifact exists under the ref.
	ErrArtifactNotFound = apperrors.New(apperrors.CodeValidatorUnavailable, "artifact not found")
)

// Job is one durable conversion work item. There is at most one job per room;
// re-requesting a conversion returns the existing record.
type Job struct {
	RoomID       string
	Status       room.ConversionStatus
	Document     string
	Reason       string
	Attempts     int
	LeaseUntil   time.Time
	NextAttempt  time.Time
	DocumentRef  string
	ValidatorRef string
	Kind         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Terminal reports whether the job finished, successfully or not.
func (j Job) Terminal() bool {
	return j.Status == room.ConversionComplete || j.Status == room.ConversionFailed
}

// JobStore is the durable queue backing the conversion worker pool.
type JobStore interface {
	// EnqueueJob records a pending job for the room with its original
	// document. When a job already exists the stored record is returned
	// with created=false and nothing is written, which makes
	// RequestConversion idempotent.
	EnqueueJob(ctx context.Context, roomID, document string) (job Job, created bool, err error)

	// GetJob returns the job for the room or ErrJobNotFound.
	GetJob(ctx context.Context, roomID string) (Job, error)

	// LeaseJob atomically claims the oldest runnable job: status pending, or
	// processing with an expired lease (a worker died mid-run), with
	// next_attempt_at due. The claim marks the job processing, bumps the
	// attempt counter, and extends the lease to now+ttl. ok=false means the
	// queue is drained.
	LeaseJob(ctx context.Context, now time.Time, ttl time.Duration) (job Job, ok bool, err error)

	// CompleteJob marks the job complete with its published refs and kind.
	CompleteJob(ctx context.Context, roomID, documentRef, validatorRef, kind string) error

	// RetryJob returns a leased job to pending with a failure reason,
	// runnable again at nextAttempt.
	RetryJob(ctx context.Context, roomID, reason string, nextAttempt time.Time) error

	// FailJob marks the job terminally failed with a structured reason. The
	// original document stays on the record so a later RequestConversion
	// retry starts from the same source.
	FailJob(ctx context.Context, roomID, reason string) error
}

// ArtifactStore holds published conversion outputs addressed by content
// hash. Refs are immutable: publishing the same ref twice is a no-op.
type ArtifactStore interface {
	// PutArtifact stores content under ref with a kind tag ("document" or
	// "validator").
	PutArtifact(ctx context.Context, ref, kind, content string) error

	// Artifact returns the content stored under ref or ErrArtifactNotFound.
	Artifact(ctx context.Context, ref string) (string, error)

	// ValidatorSource returns validator source by ref, satisfying the
	// sandbox resolver contract.
	ValidatorSource(ctx context.Context, ref string) (string, error)
}

// Store is the composite persistence surface the conversion service runs on.
type Store interface {
	JobStore
	ArtifactStore
	Close() error
}

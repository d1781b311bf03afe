package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage"
	"github.com/davidvanstory/MultiplayerGame/internal/services/game/domain/room"
)

const jobColumns = `
	room_id,
	status,
	document,
	reason,
	attempts,
	lease_until,
	next_attempt_at,
	document_ref,
	validator_ref,
	kind,
	created_at,
	updated_at`

// EnqueueJob records a pending job unless one already exists for the room.
func (s *Store) EnqueueJob(ctx context.Context, roomID, document string) (storage.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.Job{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Job{}, false, fmt.Errorf("storage is not configured")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return storage.Job{}, false, fmt.Errorf("room id is required")
	}
	if document == "" {
		return storage.Job{}, false, fmt.Errorf("document is required")
	}

	now := toMillis(time.Now())
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO conversion_jobs (room_id, status, document, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(room_id) DO NOTHING`,
		roomID,
		string(room.ConversionPending),
		document,
		now,
		now,
	)
	if err != nil {
		return storage.Job{}, false, fmt.Errorf("enqueue job: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return storage.Job{}, false, fmt.Errorf("enqueue job: %w", err)
	}

	job, err := s.GetJob(ctx, roomID)
	if err != nil {
		return storage.Job{}, false, err
	}
	return job, inserted > 0, nil
}

// GetJob returns the job for the room.
func (s *Store) GetJob(ctx context.Context, roomID string) (storage.Job, error) {
	if err := ctx.Err(); err != nil {
		return storage.Job{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Job{}, fmt.Errorf("storage is not configured")
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return storage.Job{}, fmt.Errorf("room id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM conversion_jobs
WHERE room_id = ?`, roomID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Job{}, storage.ErrJobNotFound
		}
		return storage.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// LeaseJob claims the oldest runnable job inside a transaction so concurrent
// workers never process the same room.
func (s *Store) LeaseJob(ctx context.Context, now time.Time, ttl time.Duration) (storage.Job, bool, error) {
	if err := ctx.Err(); err != nil {
		return storage.Job{}, false, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Job{}, false, fmt.Errorf("storage is not configured")
	}
	if ttl <= 0 {
		return storage.Job{}, false, fmt.Errorf("lease ttl must be positive")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Job{}, false, fmt.Errorf("begin lease: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nowMs := toMillis(now)
	row := tx.QueryRowContext(ctx, `
SELECT `+jobColumns+`
FROM conversion_jobs
WHERE (status = ? AND next_attempt_at <= ?)
   OR (status = ? AND lease_until <= ?)
ORDER BY created_at ASC
LIMIT 1`,
		string(room.ConversionPending), nowMs,
		string(room.ConversionProcessing), nowMs,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Job{}, false, nil
		}
		return storage.Job{}, false, fmt.Errorf("select runnable job: %w", err)
	}

	leaseUntil := toMillis(now.Add(ttl))
	if _, err := tx.ExecContext(ctx, `
UPDATE conversion_jobs
SET status = ?, attempts = attempts + 1, lease_until = ?, updated_at = ?
WHERE room_id = ?`,
		string(room.ConversionProcessing), leaseUntil, nowMs, job.RoomID,
	); err != nil {
		return storage.Job{}, false, fmt.Errorf("claim job: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Job{}, false, fmt.Errorf("commit lease: %w", err)
	}

	job.Status = room.ConversionProcessing
	job.Attempts++
	job.LeaseUntil = fromMillis(leaseUntil)
	job.UpdatedAt = fromMillis(nowMs)
	return job, true, nil
}

// CompleteJob marks the job complete with its published refs.
func (s *Store) CompleteJob(ctx context.Context, roomID, documentRef, validatorRef, kind string) error {
	return s.finishJob(ctx, roomID, `
UPDATE conversion_jobs
SET status = ?, document_ref = ?, validator_ref = ?, kind = ?, reason = '', lease_until = 0, updated_at = ?
WHERE room_id = ?`,
		string(room.ConversionComplete), documentRef, validatorRef, kind, toMillis(time.Now()), roomID)
}

// RetryJob returns a leased job to the queue, runnable at nextAttempt.
func (s *Store) RetryJob(ctx context.Context, roomID, reason string, nextAttempt time.Time) error {
	return s.finishJob(ctx, roomID, `
UPDATE conversion_jobs
SET status = ?, reason = ?, next_attempt_at = ?, lease_until = 0, updated_at = ?
WHERE room_id = ?`,
		string(room.ConversionPending), reason, toMillis(nextAttempt), toMillis(time.Now()), roomID)
}

// FailJob marks the job terminally failed.
func (s *Store) FailJob(ctx context.Context, roomID, reason string) error {
	return s.finishJob(ctx, roomID, `
UPDATE conversion_jobs
SET status = ?, reason = ?, lease_until = 0, updated_at = ?
WHERE room_id = ?`,
		string(room.ConversionFailed), reason, toMillis(time.Now()), roomID)
}

func (s *Store) finishJob(ctx context.Context, roomID, query string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("room id is required")
	}

	res, err := s.sqlDB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if affected == 0 {
		return storage.ErrJobNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (storage.Job, error) {
	var (
		job         storage.Job
		status      string
		leaseUntil  int64
		nextAttempt int64
		createdAt   int64
		updatedAt   int64
	)
	if err := row.Scan(
		&job.RoomID,
		&status,
		&job.Document,
		&job.Reason,
		&job.Attempts,
		&leaseUntil,
		&nextAttempt,
		&job.DocumentRef,
		&job.ValidatorRef,
		&job.Kind,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.Job{}, err
	}
	job.Status = room.ConversionStatus(status)
	job.LeaseUntil = fromMillis(leaseUntil)
	job.NextAttempt = fromMillis(nextAttempt)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	return job, nil
}

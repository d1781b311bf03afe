package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidvanstory/MultiplayerGame/internal/services/converter/storage"
)

// PutArtifact stores content under a content-addressed ref. Refs are
// immutable, so a ref that already exists is left untouched.
func (s *Store) PutArtifact(ctx context.Context, ref, kind, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	ref = strings.TrimSpace(ref)
	kind = strings.TrimSpace(kind)
	if ref == "" {
		return fmt.Errorf("artifact ref is required")
	}
	if kind == "" {
		return fmt.Errorf("artifact kind is required")
	}
	if content == "" {
		return fmt.Errorf("artifact content is required")
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO artifacts (ref, kind, content, created_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(ref) DO NOTHING`,
		ref, kind, content, toMillis(time.Now()),
	); err != nil {
		return fmt.Errorf("put artifact: %w", err)
	}
	return nil
}

// Artifact returns the content stored under ref.
func (s *Store) Artifact(ctx context.Context, ref string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("artifact ref is required")
	}

	var content string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT content FROM artifacts WHERE ref = ?`, ref).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrArtifactNotFound
		}
		return "", fmt.Errorf("get artifact: %w", err)
	}
	return content, nil
}

// ValidatorSource resolves validator source by ref for the sandbox host.
func (s *Store) ValidatorSource(ctx context.Context, ref string) (string, error) {
	return s.Artifact(ctx, ref)
}

package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/procure2pay/procure2pay/constants"
	"github.com/procure2pay/procure2pay/internal/common"
)

// Blob is a stored document: the uploaded proforma or receipt, or the
// generated purchase order. One blob per (request, kind); replaced on
// re-upload or regeneration.
type Blob struct {
	RequestID  uuid.UUID
	Kind       constants.DocumentKind
	Filename   string
	Content    []byte
	UploadedAt time.Time
}

// ArtifactRepository stores request documents.
type ArtifactRepository interface {
	Upsert(ctx context.Context, requestID uuid.UUID, kind constants.DocumentKind, filename string, content []byte) error
	Get(ctx context.Context, requestID uuid.UUID, kind constants.DocumentKind) (*Blob, error)
}

type PgArtifactRepository struct {
	db     *DB
	logger *slog.Logger
}

func NewPgArtifactRepository(db *DB, logger *slog.Logger) *PgArtifactRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PgArtifactRepository{db: db, logger: logger}
}

func (r *PgArtifactRepository) Upsert(ctx context.Context, requestID uuid.UUID, kind constants.DocumentKind, filename string, content []byte) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return upsertArtifact(ctx, tx, requestID, kind, filename, content)
	})
	if err != nil {
		return common.WrapError(common.ErrDatabase, "store artifact", err)
	}
	r.logger.Info("repository.artifact.stored",
		"request_id", requestID,
		"kind", kind,
		"filename", filename,
		"bytes", len(content),
	)
	return nil
}

func (r *PgArtifactRepository) Get(ctx context.Context, requestID uuid.UUID, kind constants.DocumentKind) (*Blob, error) {
	var b Blob
	b.RequestID = requestID
	b.Kind = kind
	err := r.db.Pool.QueryRow(ctx, `
		SELECT filename, content, uploaded_at
		FROM artifacts WHERE request_id = $1 AND kind = $2`,
		requestID, string(kind),
	).Scan(&b.Filename, &b.Content, &b.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.WrapError(common.ErrNotFound, "artifact not found", err)
		}
		return nil, common.WrapError(common.ErrDatabase, "get artifact", err)
	}
	return &b, nil
}

// upsertArtifact is shared with the decision transaction so the purchase
// order document commits atomically with the approval.
func upsertArtifact(ctx context.Context, tx pgx.Tx, requestID uuid.UUID, kind constants.DocumentKind, filename string, content []byte) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO artifacts (request_id, kind, filename, content, uploaded_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (request_id, kind)
		DO UPDATE SET filename = EXCLUDED.filename,
		              content = EXCLUDED.content,
		              uploaded_at = EXCLUDED.uploaded_at`,
		requestID, string(kind), filename, content,
	)
	return err
}

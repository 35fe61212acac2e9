package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/abd3rr/workflow-api/pkg/models"
	"github.com/google/uuid"
)

// CreateFile records metadata for a stored file.
func (q *Queries) CreateFile(ctx context.Context, f *models.File) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	query := `
		INSERT INTO files (id, name, path, content_type, size)
		VALUES (?, ?, ?, ?, ?)
		RETURNING uploaded_at
	`
	err := q.exec.QueryRowContext(ctx, query,
		f.ID, f.Name, f.Path, f.ContentType, f.Size,
	).Scan(&f.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	q.triggerChange(ctx)
	return nil
}

func (q *Queries) GetFile(ctx context.Context, id string) (*models.File, error) {
	f := &models.File{}
	err := q.exec.QueryRowContext(ctx,
		`SELECT id, name, path, content_type, size, uploaded_at FROM files WHERE id = ?`, id,
	).Scan(&f.ID, &f.Name, &f.Path, &f.ContentType, &f.Size, &f.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return f, nil
}

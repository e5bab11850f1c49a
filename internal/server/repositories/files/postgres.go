package files

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/taskkeeper/internal/common"
	"github.com/dmitrijs2005/taskkeeper/internal/dbx"
	"github.com/dmitrijs2005/taskkeeper/internal/server/models"
)

// PostgresRepository implements file metadata storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO task_files (id, task_id, category, filename, original_name, path, file_type, storage_key, uploaded_by, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var uploadedBy sql.NullString
	if file.UploadedBy != nil {
		uploadedBy = sql.NullString{String: file.UploadedBy.ID, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		file.ID, file.TaskID, file.Category, file.Filename, file.OriginalName, file.Path,
		file.FileType, file.StorageKey, uploadedBy, file.UploadedAt)
	if err != nil {
		if dbx.IsForeignKeyViolation(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, taskID, id string) error {
	query := `DELETE FROM task_files WHERE task_id = $1 AND id = $2`

	res, err := r.db.ExecContext(ctx, query, taskID, id)
	if err != nil {
		if dbx.IsInvalidInput(err) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

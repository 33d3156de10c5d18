package db

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
	_ "modernc.org/sqlite"
)

// Repository provides database operations for builds
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository
func NewRepository(dbPath string) (*Repository, error) {
	slog.Info("database_init", "db_path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("database_open_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Create schema
	slog.Info("database_create_schema", "db_path", dbPath)
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		slog.Error("database_schema_failed", "db_path", dbPath, "error", err)
		return nil, errors.Wrap(err, "failed to create schema")
	}

	slog.Info("database_ready", "db_path", dbPath)
	return &Repository{db: db}, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts a new build record
func (r *Repository) Create(b *Build) error {
	slog.Info("database_create_build", "output_path", b.OutputPath, "status", b.Status)

	query := `
		INSERT INTO builds (output_path, format, size_spec, size_bytes, mirror, archive_path, archive_sha256, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := r.db.Exec(query,
		b.OutputPath, b.Format, b.SizeSpec, b.SizeBytes, b.Mirror,
		b.ArchivePath, b.ArchiveSHA256, b.Status, b.ErrorMessage)
	if err != nil {
		slog.Error("database_insert_failed", "output_path", b.OutputPath, "error", err)
		return errors.Wrap(err, "failed to insert build")
	}

	id, err := result.LastInsertId()
	if err != nil {
		slog.Error("database_last_insert_id_failed", "output_path", b.OutputPath, "error", err)
		return errors.Wrap(err, "failed to get last insert id")
	}
	b.ID = id

	slog.Info("database_build_created", "output_path", b.OutputPath, "build_id", b.ID, "status", b.Status)
	return nil
}

// GetByOutputPath retrieves a build by its output path
func (r *Repository) GetByOutputPath(outputPath string) (*Build, error) {
	slog.Info("database_query_build", "output_path", outputPath)

	query := `
		SELECT id, output_path, format, size_spec, size_bytes, mirror,
		       archive_path, archive_sha256, status, error_message, created_at, updated_at
		FROM builds WHERE output_path = ?
	`
	var b Build
	var archivePath, archiveSHA256, errorMessage sql.NullString

	err := r.db.QueryRow(query, outputPath).Scan(
		&b.ID, &b.OutputPath, &b.Format, &b.SizeSpec, &b.SizeBytes, &b.Mirror,
		&archivePath, &archiveSHA256, &b.Status, &errorMessage,
		&b.CreatedAt, &b.UpdatedAt)

	if err == sql.ErrNoRows {
		slog.Info("database_build_not_found", "output_path", outputPath)
		return nil, nil // Not found
	}
	if err != nil {
		slog.Error("database_query_failed", "output_path", outputPath, "error", err)
		return nil, errors.Wrap(err, "failed to query build")
	}

	// Handle nullable fields
	b.ArchivePath = archivePath.String
	b.ArchiveSHA256 = archiveSHA256.String
	b.ErrorMessage = errorMessage.String

	slog.Info("database_build_found", "output_path", outputPath, "build_id", b.ID, "status", b.Status)
	return &b, nil
}

// Update updates an existing build record
func (r *Repository) Update(b *Build) error {
	slog.Info("database_update_build", "build_id", b.ID, "output_path", b.OutputPath, "status", b.Status)

	query := `
		UPDATE builds
		SET format = ?, size_spec = ?, size_bytes = ?, mirror = ?,
		    archive_path = ?, archive_sha256 = ?, status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	result, err := r.db.Exec(query,
		b.Format, b.SizeSpec, b.SizeBytes, b.Mirror,
		b.ArchivePath, b.ArchiveSHA256, b.Status, b.ErrorMessage, b.ID)
	if err != nil {
		slog.Error("database_update_failed", "build_id", b.ID, "output_path", b.OutputPath, "error", err)
		return errors.Wrap(err, "failed to update build")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		slog.Error("database_rows_affected_failed", "build_id", b.ID, "error", err)
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		slog.Error("database_build_not_found_for_update", "build_id", b.ID)
		return fmt.Errorf("build not found: id=%d", b.ID)
	}

	slog.Info("database_build_updated", "build_id", b.ID, "output_path", b.OutputPath, "status", b.Status)
	return nil
}

// UpdateStatus updates only the status field
func (r *Repository) UpdateStatus(id int64, status, errorMessage string) error {
	slog.Info("database_update_status", "build_id", id, "status", status)

	query := `UPDATE builds SET status = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	_, err := r.db.Exec(query, status, errorMessage, id)
	if err != nil {
		slog.Error("database_status_update_failed", "build_id", id, "status", status, "error", err)
		return errors.Wrap(err, "failed to update status")
	}

	slog.Info("database_status_updated", "build_id", id, "status", status)
	return nil
}

// List retrieves all builds
func (r *Repository) List() ([]*Build, error) {
	slog.Info("database_list_builds")

	query := `
		SELECT id, output_path, format, size_spec, size_bytes, mirror,
		       archive_path, archive_sha256, status, error_message, created_at, updated_at
		FROM builds ORDER BY created_at DESC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		slog.Error("database_list_query_failed", "error", err)
		return nil, errors.Wrap(err, "failed to list builds")
	}
	defer rows.Close()

	var builds []*Build
	for rows.Next() {
		var b Build
		var archivePath, archiveSHA256, errorMessage sql.NullString

		err := rows.Scan(
			&b.ID, &b.OutputPath, &b.Format, &b.SizeSpec, &b.SizeBytes, &b.Mirror,
			&archivePath, &archiveSHA256, &b.Status, &errorMessage,
			&b.CreatedAt, &b.UpdatedAt)
		if err != nil {
			slog.Error("database_scan_row_failed", "error", err)
			return nil, errors.Wrap(err, "failed to scan row")
		}

		b.ArchivePath = archivePath.String
		b.ArchiveSHA256 = archiveSHA256.String
		b.ErrorMessage = errorMessage.String

		builds = append(builds, &b)
	}

	if err := rows.Err(); err != nil {
		slog.Error("database_rows_error", "error", err)
		return nil, errors.Wrap(err, "rows error")
	}

	slog.Info("database_list_complete", "build_count", len(builds))
	return builds, nil
}

// Delete deletes a build by ID
func (r *Repository) Delete(id int64) error {
	slog.Info("database_delete_build", "build_id", id)

	query := `DELETE FROM builds WHERE id = ?`
	_, err := r.db.Exec(query, id)
	if err != nil {
		slog.Error("database_delete_failed", "build_id", id, "error", err)
		return errors.Wrap(err, "failed to delete build")
	}

	slog.Info("database_build_deleted", "build_id", id)
	return nil
}

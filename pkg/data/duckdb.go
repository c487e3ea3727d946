package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const schema = `
CREATE TABLE IF NOT EXISTS downloads (
	id VARCHAR PRIMARY KEY,
	run_id VARCHAR NOT NULL,
	series_url VARCHAR NOT NULL,
	series_title VARCHAR,
	chapter INTEGER NOT NULL,
	pages INTEGER NOT NULL DEFAULT 0,
	path VARCHAR,
	format VARCHAR,
	status VARCHAR NOT NULL,
	error VARCHAR,
	created_at TIMESTAMP DEFAULT current_timestamp
)`

// InitDuckDB opens the history database at path and makes sure the schema exists
func InitDuckDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}

// Repository stores the download history
type Repository struct {
	db *sql.DB
}

// OpenRepository opens (or creates) the history database at path
func OpenRepository(path string) (*Repository, error) {
	db, err := InitDuckDB(path)
	if err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

// SaveDownload records the outcome of one chapter download
func (r *Repository) SaveDownload(d *Download) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	_, err := r.db.Exec(`
		INSERT INTO downloads (id, run_id, series_url, series_title, chapter, pages, path, format, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.RunID, d.SeriesURL, d.SeriesTitle, d.Chapter, d.Pages, d.Path, d.Format, d.Status, d.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save download: %w", err)
	}
	return nil
}

// ListDownloads returns the most recent downloads first, at most limit rows (0 means all)
func (r *Repository) ListDownloads(limit int) ([]*Download, error) {
	query := `
		SELECT id, run_id, series_url, series_title, chapter, pages, path, format, status, error, created_at
		FROM downloads
		ORDER BY created_at DESC, chapter DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list downloads: %w", err)
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		d := &Download{}
		var title, path, format, errMsg sql.NullString
		if err := rows.Scan(&d.ID, &d.RunID, &d.SeriesURL, &title, &d.Chapter, &d.Pages, &path, &format, &d.Status, &errMsg, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download: %w", err)
		}
		d.SeriesTitle = title.String
		d.Path = path.String
		d.Format = format.String
		d.Error = errMsg.String
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// DownloadedChapters returns the chapter numbers of seriesURL that completed at least once
func (r *Repository) DownloadedChapters(seriesURL string) ([]int, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT chapter FROM downloads
		WHERE series_url = ? AND status = 'completed'
		ORDER BY chapter`, seriesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to query chapters: %w", err)
	}
	defer rows.Close()

	var chapters []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		chapters = append(chapters, n)
	}
	return chapters, rows.Err()
}

// Close releases the database
func (r *Repository) Close() error {
	return r.db.Close()
}

package db

import "time"

// Download records a completed book download
type Download struct {
	ID         int64
	RevisionID string
	Title      string
	Author     string
	OwnerEmail string
	FilePath   string
	CreatedAt  time.Time
}

// RecordDownload appends a download to the history
func RecordDownload(d *Download) error {
	result, err := database.Exec(`
		INSERT INTO downloads (revision_id, title, author, owner_email, file_path)
		VALUES (?, ?, ?, ?, ?)`,
		d.RevisionID, d.Title, d.Author, d.OwnerEmail, d.FilePath,
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

// ListDownloads returns the most recent downloads, newest first
func ListDownloads(limit int) ([]*Download, error) {
	rows, err := database.Query(`
		SELECT id, revision_id, title, author, owner_email, file_path, created_at
		FROM downloads ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		d := &Download{}
		if err := rows.Scan(
			&d.ID, &d.RevisionID, &d.Title, &d.Author, &d.OwnerEmail, &d.FilePath, &d.CreatedAt,
		); err != nil {
			return nil, err
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// ClearDownloads removes the entire download history
func ClearDownloads() error {
	_, err := database.Exec(`DELETE FROM downloads`)
	return err
}

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is a Kobo account credential record. The device id is assigned once
// at first device authentication and is stable afterwards; the token pair
// is replaced on every successful authentication or refresh.
type User struct {
	Email        string
	DeviceID     string
	UserID       string
	UserKey      string
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AreAuthenticationSettingsSet reports whether the record holds a complete
// bearer token pair.
func (u *User) AreAuthenticationSettingsSet() bool {
	return u.AccessToken != "" && u.RefreshToken != ""
}

// IsLoggedIn reports whether the record is bound to a Kobo user account,
// as opposed to an anonymous device registration.
func (u *User) IsLoggedIn() bool {
	return u.UserID != "" && u.UserKey != ""
}

// SaveUser inserts or updates a credential record, keyed by email
func SaveUser(u *User) error {
	_, err := database.Exec(`
		INSERT INTO users (email, device_id, user_id, user_key, access_token, refresh_token)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			device_id = excluded.device_id,
			user_id = excluded.user_id,
			user_key = excluded.user_key,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			updated_at = CURRENT_TIMESTAMP`,
		u.Email, u.DeviceID, u.UserID, u.UserKey, u.AccessToken, u.RefreshToken,
	)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", u.Email, err)
	}
	return nil
}

// GetUser finds a user by email or user key. Returns nil when no record matches.
func GetUser(identifier string) (*User, error) {
	u := &User{}
	err := database.QueryRow(`
		SELECT email, device_id, user_id, user_key, access_token, refresh_token, created_at, updated_at
		FROM users WHERE email = ? OR user_key = ?`, identifier, identifier).Scan(
		&u.Email, &u.DeviceID, &u.UserID, &u.UserKey, &u.AccessToken, &u.RefreshToken,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// ListUsers returns all stored credential records ordered by creation time
func ListUsers() ([]*User, error) {
	rows, err := database.Query(`
		SELECT email, device_id, user_id, user_key, access_token, refresh_token, created_at, updated_at
		FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u := &User{}
		if err := rows.Scan(
			&u.Email, &u.DeviceID, &u.UserID, &u.UserKey, &u.AccessToken, &u.RefreshToken,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// RemoveUser deletes the record for the given email. Returns whether a
// record was actually removed.
func RemoveUser(email string) (bool, error) {
	result, err := database.Exec(`DELETE FROM users WHERE email = ?`, email)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

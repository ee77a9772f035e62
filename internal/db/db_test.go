package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) {
	t.Helper()
	if err := Open(filepath.Join(t.TempDir(), "kobodl.db")); err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if err := Close(); err != nil {
			t.Errorf("failed to close database: %v", err)
		}
	})
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "kobodl.db")
	if err := Open(path); err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer Close()

	if DB() == nil {
		t.Fatal("DB() returned nil after Open")
	}
}

func TestSaveAndGetUser(t *testing.T) {
	openTestDB(t)

	user := &User{
		Email:        "reader@example.com",
		DeviceID:     "device-1",
		UserID:       "user-1",
		UserKey:      "key-1",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
	}
	if err := SaveUser(user); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	byEmail, err := GetUser("reader@example.com")
	if err != nil {
		t.Fatalf("failed to get user by email: %v", err)
	}
	if byEmail == nil {
		t.Fatal("expected a user, got nil")
	}
	if byEmail.DeviceID != "device-1" || byEmail.AccessToken != "access-1" {
		t.Errorf("unexpected record: %+v", byEmail)
	}
	if byEmail.CreatedAt.IsZero() || byEmail.UpdatedAt.IsZero() {
		t.Error("timestamps were not populated")
	}

	byKey, err := GetUser("key-1")
	if err != nil {
		t.Fatalf("failed to get user by key: %v", err)
	}
	if byKey == nil || byKey.Email != "reader@example.com" {
		t.Errorf("lookup by user key returned %+v", byKey)
	}

	missing, err := GetUser("nobody@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for an unknown identifier, got %+v", missing)
	}
}

func TestSaveUserUpdatesExistingRecord(t *testing.T) {
	openTestDB(t)

	user := &User{Email: "reader@example.com", AccessToken: "old-access", RefreshToken: "old-refresh"}
	if err := SaveUser(user); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	user.AccessToken = "new-access"
	user.RefreshToken = "new-refresh"
	if err := SaveUser(user); err != nil {
		t.Fatalf("failed to update user: %v", err)
	}

	users, err := ListUsers()
	if err != nil {
		t.Fatalf("failed to list users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user after upsert, got %d", len(users))
	}
	if users[0].AccessToken != "new-access" {
		t.Errorf("AccessToken = %q, want %q", users[0].AccessToken, "new-access")
	}
}

func TestRemoveUser(t *testing.T) {
	openTestDB(t)

	if err := SaveUser(&User{Email: "reader@example.com"}); err != nil {
		t.Fatalf("failed to save user: %v", err)
	}

	removed, err := RemoveUser("reader@example.com")
	if err != nil {
		t.Fatalf("failed to remove user: %v", err)
	}
	if !removed {
		t.Error("expected removal of an existing record to report true")
	}

	removed, err = RemoveUser("reader@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if removed {
		t.Error("expected removal of a missing record to report false")
	}
}

func TestUserPredicates(t *testing.T) {
	tests := []struct {
		name          string
		user          User
		authenticated bool
		loggedIn      bool
	}{
		{name: "empty record", user: User{Email: "a@b.c"}},
		{
			name:          "device registration only",
			user:          User{AccessToken: "a", RefreshToken: "r"},
			authenticated: true,
		},
		{
			name:     "login without tokens",
			user:     User{UserID: "u", UserKey: "k"},
			loggedIn: true,
		},
		{
			name:          "half a token pair",
			user:          User{AccessToken: "a"},
			authenticated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.AreAuthenticationSettingsSet(); got != tt.authenticated {
				t.Errorf("AreAuthenticationSettingsSet() = %v, want %v", got, tt.authenticated)
			}
			if got := tt.user.IsLoggedIn(); got != tt.loggedIn {
				t.Errorf("IsLoggedIn() = %v, want %v", got, tt.loggedIn)
			}
		})
	}
}

func TestDownloadHistory(t *testing.T) {
	openTestDB(t)

	first := &Download{RevisionID: "rev-1", Title: "First", Author: "Jane Doe", OwnerEmail: "a@b.c", FilePath: "/books/first.epub"}
	second := &Download{RevisionID: "rev-2", Title: "Second", OwnerEmail: "a@b.c", FilePath: "/books/second.epub"}
	for _, d := range []*Download{first, second} {
		if err := RecordDownload(d); err != nil {
			t.Fatalf("failed to record download: %v", err)
		}
		if d.ID == 0 {
			t.Error("RecordDownload did not set the row id")
		}
	}

	downloads, err := ListDownloads(10)
	if err != nil {
		t.Fatalf("failed to list downloads: %v", err)
	}
	if len(downloads) != 2 {
		t.Fatalf("expected 2 downloads, got %d", len(downloads))
	}
	// Newest first.
	if downloads[0].RevisionID != "rev-2" || downloads[1].RevisionID != "rev-1" {
		t.Errorf("unexpected order: %q then %q", downloads[0].RevisionID, downloads[1].RevisionID)
	}

	limited, err := ListDownloads(1)
	if err != nil {
		t.Fatalf("failed to list downloads: %v", err)
	}
	if len(limited) != 1 || limited[0].RevisionID != "rev-2" {
		t.Errorf("limit not applied: %+v", limited)
	}

	if err := ClearDownloads(); err != nil {
		t.Fatalf("failed to clear downloads: %v", err)
	}
	downloads, err = ListDownloads(10)
	if err != nil {
		t.Fatalf("failed to list downloads: %v", err)
	}
	if len(downloads) != 0 {
		t.Errorf("expected empty history after clear, got %d entries", len(downloads))
	}
}

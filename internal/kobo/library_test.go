package kobo

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/billmal071/kobodl/internal/db"
)

func syncEntry(envelope, revisionID, title string, removed bool, status string, authors ...string) map[string]interface{} {
	roles := make([]map[string]string, 0, len(authors))
	for _, a := range authors {
		roles = append(roles, map[string]string{"Name": a})
	}
	return map[string]interface{}{
		envelope: map[string]interface{}{
			"BookEntitlement": map[string]interface{}{"IsRemoved": removed},
			"BookMetadata": map[string]interface{}{
				"RevisionId":       revisionID,
				"Title":            title,
				"ContributorRoles": roles,
			},
			"ReadingState": map[string]interface{}{
				"StatusInfo": map[string]interface{}{"Status": status},
			},
		},
	}
}

func TestListBooks_FollowsSyncCursor(t *testing.T) {
	var tokensSeen []string

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/library/sync", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Kobo-Synctoken")
		tokensSeen = append(tokensSeen, token)

		switch token {
		case "":
			w.Header().Set("x-kobo-sync", "continue")
			w.Header().Set("x-kobo-synctoken", "cursor-1")
			writeJSON(t, w, []interface{}{
				syncEntry("NewEntitlement", "rev-1", "First Book", false, "ReadyToRead", "Jane Doe", "John Roe"),
				// Tag updates carry no entitlement envelope and are skipped.
				map[string]interface{}{"NewTag": map[string]interface{}{"Name": "favorites"}},
			})
		case "cursor-1":
			w.Header().Set("x-kobo-sync", "continue")
			w.Header().Set("x-kobo-synctoken", "cursor-2")
			writeJSON(t, w, []interface{}{
				syncEntry("ChangedEntitlement", "rev-2", "Second Book", true, "ReadyToRead", "Jane Doe"),
			})
		case "cursor-2":
			writeJSON(t, w, []interface{}{
				syncEntry("NewEntitlement", "rev-3", "Third Book", false, "Finished"),
			})
		default:
			t.Errorf("unexpected sync token %q", token)
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	user := &db.User{Email: "reader@example.com", AccessToken: "a", RefreshToken: "r"}
	client := newTestClient(t, server.URL, user, nil)
	client.resources = map[string]string{"library_sync": server.URL + "/v1/library/sync"}

	books, err := client.ListBooks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTokens := []string{"", "cursor-1", "cursor-2"}
	if len(tokensSeen) != len(wantTokens) {
		t.Fatalf("expected %d requests, got %d", len(wantTokens), len(tokensSeen))
	}
	for i, want := range wantTokens {
		if tokensSeen[i] != want {
			t.Errorf("request %d carried token %q, want %q", i, tokensSeen[i], want)
		}
	}

	if len(books) != 3 {
		t.Fatalf("expected 3 books, got %d", len(books))
	}

	first := books[0]
	if first.RevisionID != "rev-1" || first.Title != "First Book" {
		t.Errorf("unexpected first book: %+v", first)
	}
	if first.Author != "Jane Doe, John Roe" {
		t.Errorf("author = %q, want joined contributor names", first.Author)
	}
	if first.Owner != user {
		t.Error("book owner must reference the listing user")
	}

	if !books[1].Archived {
		t.Error("removed entitlement must be reported as archived")
	}
	if !books[2].Read {
		t.Error("finished reading state must be reported as read")
	}
	if books[0].Read || books[1].Read {
		t.Error("unfinished books must not be reported as read")
	}
}

func TestListBooks_RequiresAuthentication(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	user := &db.User{Email: "reader@example.com"}
	client := newTestClient(t, server.URL, user, nil)
	client.resources = map[string]string{"library_sync": server.URL + "/v1/library/sync"}

	_, err := client.ListBooks()

	var notAuthErr *NotAuthenticatedError
	if !errors.As(err, &notAuthErr) {
		t.Fatalf("expected NotAuthenticatedError, got %T: %v", err, err)
	}
	if notAuthErr.Email != "reader@example.com" {
		t.Errorf("error names %q, want the user's email", notAuthErr.Email)
	}
	if requests != 0 {
		t.Errorf("the precondition must be checked before any request, got %d requests", requests)
	}
}

func TestListWishlist_Paginates(t *testing.T) {
	var pagesSeen []string

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/wishlist", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if got := query.Get("PageSize"); got != "100" {
			t.Errorf("PageSize = %q, want %q", got, "100")
		}
		pageIndex := query.Get("PageIndex")
		pagesSeen = append(pagesSeen, pageIndex)

		writeJSON(t, w, map[string]interface{}{
			"TotalPageCount": 3,
			"Items": []map[string]interface{}{
				{
					"CrossRevisionId": "wish-" + pageIndex,
					"DateAdded":       "2024-01-0" + pageIndex,
					"ProductMetadata": map[string]interface{}{
						"Book": map[string]interface{}{"Title": "Wished " + pageIndex},
					},
				},
			},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	user := &db.User{Email: "reader@example.com", AccessToken: "a", RefreshToken: "r"}
	client := newTestClient(t, server.URL, user, nil)
	client.resources = map[string]string{"user_wishlist": server.URL + "/v1/user/wishlist"}

	items, err := client.ListWishlist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantPages := []string{"0", "1", "2"}
	if fmt.Sprint(pagesSeen) != fmt.Sprint(wantPages) {
		t.Errorf("page indexes = %v, want %v", pagesSeen, wantPages)
	}

	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if want := fmt.Sprintf("wish-%d", i); item.CrossRevisionID != want {
			t.Errorf("item %d = %q, want %q", i, item.CrossRevisionID, want)
		}
	}
	if items[0].Title() != "Wished 0" {
		t.Errorf("Title() = %q, want %q", items[0].Title(), "Wished 0")
	}
}

func TestListWishlist_ZeroPagesStillFetchesOnce(t *testing.T) {
	requests := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/user/wishlist", func(w http.ResponseWriter, r *http.Request) {
		requests++
		writeJSON(t, w, map[string]interface{}{"TotalPageCount": 0, "Items": []interface{}{}})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	user := &db.User{Email: "reader@example.com", AccessToken: "a", RefreshToken: "r"}
	client := newTestClient(t, server.URL, user, nil)
	client.resources = map[string]string{"user_wishlist": server.URL + "/v1/user/wishlist"}

	items, err := client.ListWishlist()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no items, got %d", len(items))
	}
	if requests != 1 {
		t.Errorf("expected exactly 1 request, got %d", requests)
	}
}

func TestBookInfo_SubstitutesProductID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/products/books/prod-9", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, map[string]interface{}{"Title": "A Catalog Entry"})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	user := &db.User{Email: "reader@example.com", AccessToken: "a", RefreshToken: "r"}
	client := newTestClient(t, server.URL, user, nil)
	client.resources = map[string]string{"book": server.URL + "/v1/products/books/{ProductId}"}

	info, err := client.BookInfo("prod-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info["Title"] != "A Catalog Entry" {
		t.Errorf("unexpected info: %v", info)
	}
}

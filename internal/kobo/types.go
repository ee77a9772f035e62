package kobo

import (
	"strings"

	"github.com/billmal071/kobodl/internal/db"
)

// Book is an immutable snapshot of an owned library item. Owner references
// the credential record the book was listed under.
type Book struct {
	RevisionID string
	Title      string
	Author     string
	Archived   bool
	Read       bool
	Owner      *db.User
}

// WishlistItem is a single entry of the user's wishlist.
type WishlistItem struct {
	CrossRevisionID string          `json:"CrossRevisionId"`
	DateAdded       string          `json:"DateAdded"`
	ProductMetadata productMetadata `json:"ProductMetadata"`
}

// Title returns the wishlisted book's title.
func (w WishlistItem) Title() string {
	return w.ProductMetadata.Book.Title
}

type productMetadata struct {
	Book bookMetadata `json:"Book"`
}

// ContentKey is a named, wrapped decryption key from the content access
// endpoint.
type ContentKey struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// ContentURL describes one downloadable encoding of a book.
type ContentURL struct {
	DRMType     string `json:"DRMType"`
	URLFormat   string `json:"UrlFormat"`
	DownloadURL string `json:"DownloadUrl"`
}

// ContentAccess is the per-book response of the content access endpoint.
// It is fetched fresh for every download and never cached. Archived books
// come back with empty ContentKeys and ContentUrls.
type ContentAccess struct {
	ContentKeys []ContentKey `json:"ContentKeys"`
	ContentURLs []ContentURL `json:"ContentUrls"`
}

// keys flattens the named content keys into a map. An absent field is
// expected for archived books and yields an empty map.
func (a *ContentAccess) keys() map[string]string {
	keys := make(map[string]string, len(a.ContentKeys))
	for _, k := range a.ContentKeys {
		keys[k.Name] = k.Value
	}
	return keys
}

type authResponse struct {
	TokenType    string `json:"TokenType"`
	AccessToken  string `json:"AccessToken"`
	RefreshToken string `json:"RefreshToken"`
	UserKey      string `json:"UserKey"`
}

type initializationResponse struct {
	Resources map[string]string `json:"Resources"`
}

type wishlistPage struct {
	Items          []WishlistItem `json:"Items"`
	TotalPageCount int            `json:"TotalPageCount"`
}

// syncItem is one entry of a library sync batch. The server wraps book data
// in one of several entitlement envelopes depending on what changed.
type syncItem struct {
	NewEntitlement     *entitlement `json:"NewEntitlement"`
	ChangedEntitlement *entitlement `json:"ChangedEntitlement"`
}

type entitlement struct {
	BookEntitlement bookEntitlement `json:"BookEntitlement"`
	BookMetadata    bookMetadata    `json:"BookMetadata"`
	ReadingState    readingState    `json:"ReadingState"`
}

type bookEntitlement struct {
	IsRemoved bool `json:"IsRemoved"`
}

type bookMetadata struct {
	RevisionID       string            `json:"RevisionId"`
	Title            string            `json:"Title"`
	ContributorRoles []contributorRole `json:"ContributorRoles"`
}

type contributorRole struct {
	Name string `json:"Name"`
}

type readingState struct {
	StatusInfo statusInfo `json:"StatusInfo"`
}

type statusInfo struct {
	Status string `json:"Status"`
}

// book converts a sync entry to a Book. Entries that carry no entitlement
// envelope (tag updates and the like) are skipped.
func (s syncItem) book(owner *db.User) (Book, bool) {
	ent := s.NewEntitlement
	if ent == nil {
		ent = s.ChangedEntitlement
	}
	if ent == nil || ent.BookMetadata.RevisionID == "" {
		return Book{}, false
	}

	return Book{
		RevisionID: ent.BookMetadata.RevisionID,
		Title:      ent.BookMetadata.Title,
		Author:     ent.BookMetadata.author(),
		Archived:   ent.BookEntitlement.IsRemoved,
		Read:       ent.ReadingState.StatusInfo.Status == "Finished",
		Owner:      owner,
	}, true
}

func (m bookMetadata) author() string {
	var names []string
	for _, role := range m.ContributorRoles {
		if role.Name != "" {
			names = append(names, role.Name)
		}
	}
	return strings.Join(names, ", ")
}

// Package kobo implements a client for the Kobo store private web API:
// device/user authentication, endpoint discovery, library and wishlist
// enumeration, and book downloads.
//
// A Client operates on a single credential record and is not safe for
// concurrent use: authentication refreshes mutate the record in place, and
// concurrent refreshes could overwrite a fresh token pair with a stale one.
package kobo

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"

	"github.com/rs/zerolog"

	"github.com/billmal071/kobodl/internal/db"
)

// Identifiers the store API expects from the official Android app.
const (
	Affiliate          = "Kobo"
	ApplicationVersion = "8.11.24971"
	DefaultPlatformID  = "00000000-0000-0000-0000-000000004000"
	DisplayProfile     = "Android"
)

const defaultStoreAPIURL = "https://storeapi.kobo.com"

// SaveFunc persists a credential record. The client calls it after every
// successful authentication mutation and never otherwise.
type SaveFunc func(*db.User) error

// DrmRemover strips content protection from a downloaded book, producing a
// readable copy at outputPath. contentKeys maps archive entry names to their
// wrapped decryption keys as returned by the content access endpoint.
type DrmRemover interface {
	RemoveDrm(inputPath, outputPath string, contentKeys map[string]string) error
}

// Config holds client configuration.
type Config struct {
	User        *db.User       // Required: the credential record to operate on
	Save        SaveFunc       // Optional: persistence hook for auth mutations
	DrmRemover  DrmRemover     // Optional: required only to download KDRM books
	HTTPClient  *http.Client   // Optional: HTTP client (defaults to one with a cookie jar)
	StoreAPIURL string         // Optional: store API base URL (used for testing)
	UserAgent   string         // Optional: User-Agent header for every request
	Logger      zerolog.Logger // Optional: defaults to a no-op logger
	Progress    io.Writer      // Optional: download progress output (defaults to stderr)
}

// Client talks to the Kobo store API on behalf of one user.
type Client struct {
	user      *db.User
	save      SaveFunc
	drm       DrmRemover
	http      *http.Client
	storeAPI  string
	userAgent string
	log       zerolog.Logger
	progress  io.Writer
	resources map[string]string
}

// NewClient creates a client for the given credential record.
func NewClient(cfg Config) (*Client, error) {
	if cfg.User == nil {
		return nil, fmt.Errorf("kobo: User is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// The sign-in flow depends on cookies surviving between the
		// sign-in page fetch and the credential POST.
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar}
	}

	storeAPI := cfg.StoreAPIURL
	if storeAPI == "" {
		storeAPI = defaultStoreAPIURL
	}

	progress := cfg.Progress
	if progress == nil {
		progress = os.Stderr
	}

	return &Client{
		user:      cfg.User,
		save:      cfg.Save,
		drm:       cfg.DrmRemover,
		http:      httpClient,
		storeAPI:  storeAPI,
		userAgent: cfg.UserAgent,
		log:       cfg.Logger,
		progress:  progress,
	}, nil
}

// newRequest builds a request carrying the configured User-Agent. Every
// outgoing request, page fetches and artifact downloads included, goes
// through here so the whole session presents one identity.
func (c *Client) newRequest(method, url string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return req, nil
}

// User returns the credential record the client operates on.
func (c *Client) User() *db.User {
	return c.user
}

// persist runs the save hook, if any, after a successful auth mutation.
func (c *Client) persist() error {
	if c.save == nil {
		return nil
	}
	if err := c.save(c.user); err != nil {
		return fmt.Errorf("failed to save credentials for %s: %w", c.user.Email, err)
	}
	return nil
}

package cli

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/billmal071/kobodl/internal/config"
	"github.com/billmal071/kobodl/internal/db"
	"github.com/billmal071/kobodl/internal/drm"
	"github.com/billmal071/kobodl/internal/kobo"
	"github.com/billmal071/kobodl/internal/notify"
	"github.com/billmal071/kobodl/internal/tui"
)

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "List and download books",
	Long: `List and download the books you own.

Examples:
  kobodl book list                     List your library
  kobodl book list --read              Include finished books
  kobodl book get                      Pick books to download interactively
  kobodl book get --all                Download everything
  kobodl book get <revision-id>...     Download specific books`,
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books in your library",
	RunE:  runBookList,
}

var bookGetCmd = &cobra.Command{
	Use:   "get [revision-id...]",
	Short: "Download books",
	RunE:  runBookGet,
}

var wishlistCmd = &cobra.Command{
	Use:   "wishlist",
	Short: "List wishlisted books",
	RunE:  runWishlist,
}

func init() {
	bookListCmd.Flags().StringP("user", "u", "", "account email or user key (required with multiple accounts)")
	bookListCmd.Flags().Bool("read", false, "include books marked as read")

	bookGetCmd.Flags().StringP("user", "u", "", "account email or user key (required with multiple accounts)")
	bookGetCmd.Flags().StringP("output", "o", "", "output directory (default from config)")
	bookGetCmd.Flags().BoolP("all", "a", false, "download every non-archived book")

	wishlistCmd.Flags().StringP("user", "u", "", "account email or user key (required with multiple accounts)")

	bookCmd.AddCommand(bookListCmd)
	bookCmd.AddCommand(bookGetCmd)
}

// newHTTPClient builds the HTTP client the kobo session rides on: a cookie
// jar for the sign-in flow and the configured network timeout.
func newHTTPClient() (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: config.Get().Network.Timeout}, nil
}

// newKoboClient builds a ready-to-use client for a stored account: auth
// state from the database, save hook wired, endpoint directory resolved.
func newKoboClient(user *db.User) (*kobo.Client, error) {
	httpClient, err := newHTTPClient()
	if err != nil {
		return nil, err
	}

	client, err := kobo.NewClient(kobo.Config{
		User:       user,
		Save:       db.SaveUser,
		DrmRemover: drm.NewRemover(user.DeviceID, user.UserID),
		HTTPClient: httpClient,
		UserAgent:  config.Get().Network.UserAgent,
		Logger:     log.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := client.LoadInitializationSettings(); err != nil {
		return nil, err
	}
	return client, nil
}

func runBookList(cmd *cobra.Command, args []string) error {
	userFlag, _ := cmd.Flags().GetString("user")
	includeRead, _ := cmd.Flags().GetBool("read")

	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}
	client, err := newKoboClient(user)
	if err != nil {
		return err
	}

	books, err := client.ListBooks()
	if err != nil {
		return err
	}

	shown := 0
	for _, book := range books {
		if book.Read && !includeRead {
			continue
		}
		shown++
		printBook(book)
	}

	if shown == 0 {
		fmt.Println("No books found.")
	}
	return nil
}

func printBook(book kobo.Book) {
	fmt.Printf("%s\n", book.Title)
	if book.Author != "" {
		fmt.Printf("   Author: %s\n", book.Author)
	}
	fmt.Printf("   RevisionId: %s\n", book.RevisionID)
	if book.Archived {
		fmt.Printf("   Archived: yes\n")
	}
	fmt.Printf("   Owner: %s\n\n", book.Owner.Email)
}

func runBookGet(cmd *cobra.Command, args []string) error {
	userFlag, _ := cmd.Flags().GetString("user")
	outputDir, _ := cmd.Flags().GetString("output")
	getAll, _ := cmd.Flags().GetBool("all")

	if getAll && len(args) > 0 {
		return fmt.Errorf("cannot pass revision IDs when --all is used")
	}

	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}
	client, err := newKoboClient(user)
	if err != nil {
		return err
	}

	if outputDir == "" {
		outputDir = config.Get().Downloads.Path
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	books, err := client.ListBooks()
	if err != nil {
		return err
	}

	var picked []kobo.Book
	switch {
	case getAll:
		for _, book := range books {
			if !book.Archived {
				picked = append(picked, book)
			}
		}
	case len(args) > 0:
		byRevision := make(map[string]kobo.Book, len(books))
		for _, book := range books {
			byRevision[book.RevisionID] = book
		}
		for _, rid := range args {
			book, ok := byRevision[rid]
			if !ok {
				return fmt.Errorf("no book with revision ID %q in the library of %s", rid, user.Email)
			}
			picked = append(picked, book)
		}
	default:
		picked, err = tui.RunPicker(books)
		if err != nil {
			return err
		}
		if len(picked) == 0 {
			fmt.Println("Nothing selected.")
			return nil
		}
	}

	var failed int
	for _, book := range picked {
		outputPath := filepath.Join(outputDir, bookFilename(book))
		fmt.Printf("Downloading: %s\n", book.Title)

		if _, err := client.Download(book.RevisionID, outputPath); err != nil {
			failed++
			Errorf("failed to download %s: %v", book.Title, err)
			notify.DownloadFailed(book.Title, err.Error())
			continue
		}

		if err := db.RecordDownload(&db.Download{
			RevisionID: book.RevisionID,
			Title:      book.Title,
			Author:     book.Author,
			OwnerEmail: user.Email,
			FilePath:   outputPath,
		}); err != nil {
			log.Warn().Err(err).Msg("failed to record download history")
		}

		Successf("Downloaded to %s", outputPath)
		notify.DownloadComplete(book.Title)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", failed, len(picked))
	}
	return nil
}

func runWishlist(cmd *cobra.Command, args []string) error {
	userFlag, _ := cmd.Flags().GetString("user")

	user, err := resolveUser(userFlag)
	if err != nil {
		return err
	}
	client, err := newKoboClient(user)
	if err != nil {
		return err
	}

	items, err := client.ListWishlist()
	if err != nil {
		return err
	}

	if len(items) == 0 {
		fmt.Println("Wishlist is empty.")
		return nil
	}

	fmt.Printf("Wishlist (%d):\n\n", len(items))
	for _, item := range items {
		fmt.Printf("  %s\n", item.Title())
		if item.DateAdded != "" {
			fmt.Printf("     Added: %s\n", item.DateAdded)
		}
		fmt.Println()
	}
	return nil
}

// bookFilename derives "Author - Title.epub" for a book, sanitized for the
// filesystem.
func bookFilename(book kobo.Book) string {
	name := book.Title
	if book.Author != "" {
		name = book.Author + " - " + name
	}
	return sanitizeFilename(name) + ".epub"
}

// sanitizeFilename removes invalid characters from a filename
func sanitizeFilename(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	for _, char := range invalid {
		name = strings.ReplaceAll(name, char, "_")
	}

	name = strings.TrimSpace(name)
	if len(name) > 120 {
		name = name[:120]
	}
	return name
}

package kobo

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const wishlistPageSize = 100

// ListBooks returns every book of the user's library, in server order,
// following the library sync cursor until the server stops signalling
// continuation. The user must already be authenticated; this is checked
// locally before any request is issued.
func (c *Client) ListBooks() ([]Book, error) {
	if !c.user.AreAuthenticationSettingsSet() {
		return nil, &NotAuthenticatedError{Email: c.user.Email}
	}

	var books []Book
	syncToken := ""
	for {
		items, next, err := c.bookListPage(syncToken)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if b, ok := item.book(c.user); ok {
				books = append(books, b)
			}
		}
		if next == "" {
			break
		}
		syncToken = next
	}

	c.log.Debug().Int("books", len(books)).Msg("library listed")
	return books, nil
}

// bookListPage fetches one library sync batch. A non-empty sync token rides
// along as a request header; the next token comes back in the response
// headers when the server has more to send.
func (c *Client) bookListPage(syncToken string) ([]syncItem, string, error) {
	u, err := c.resource("library_sync")
	if err != nil {
		return nil, "", err
	}

	var header http.Header
	if syncToken != "" {
		header = http.Header{"X-Kobo-Synctoken": {syncToken}}
	}

	var items []syncItem
	respHeader, err := c.getJSON(u, header, &items)
	if err != nil {
		return nil, "", err
	}

	next := ""
	if respHeader.Get("x-kobo-sync") == "continue" {
		next = respHeader.Get("x-kobo-synctoken")
	}
	return items, next, nil
}

// ListWishlist returns every wishlist item, one hundred-item page at a
// time. The stop condition is evaluated after each fetch, so exactly one
// request is issued even when the server reports zero pages; a non-positive
// TotalPageCount therefore behaves as "no further pages".
func (c *Client) ListWishlist() ([]WishlistItem, error) {
	wishlistURL, err := c.resource("user_wishlist")
	if err != nil {
		return nil, err
	}

	var items []WishlistItem
	for pageIndex := 0; ; {
		u, err := pageURL(wishlistURL, pageIndex)
		if err != nil {
			return nil, err
		}

		var page wishlistPage
		if _, err := c.getJSON(u, nil, &page); err != nil {
			return nil, err
		}
		items = append(items, page.Items...)

		pageIndex++
		if pageIndex >= page.TotalPageCount {
			break
		}
	}

	return items, nil
}

func pageURL(wishlistURL string, pageIndex int) (string, error) {
	u, err := url.Parse(wishlistURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse user_wishlist URL: %w", err)
	}
	query := u.Query()
	query.Set("PageIndex", fmt.Sprint(pageIndex))
	query.Set("PageSize", fmt.Sprint(wishlistPageSize))
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// BookInfo fetches the catalog metadata document for a single product.
func (c *Client) BookInfo(productID string) (map[string]interface{}, error) {
	u, err := c.resource("book")
	if err != nil {
		return nil, err
	}
	u = strings.ReplaceAll(u, "{ProductId}", productID)

	var info map[string]interface{}
	if _, err := c.getJSON(u, nil, &info); err != nil {
		return nil, err
	}
	return info, nil
}

package kobo

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
)

const (
	downloadChunkSize = 256 * 1024
	temporarySuffix   = ".downloading"
)

// Encodings the pipeline knows how to materialize. The scan over the
// server's URL list is strict first-match: response order decides when
// several entries qualify.
var (
	supportedDRMTypes = []string{"KDRM", "SignedNoDrm"}
	supportedFormats  = []string{"EPUB3", "KEPUB", "EPUB3FL"}
)

// Download fetches the best available encoding of a book into outputPath.
// The artifact is streamed to a temporary sibling file first; KDRM
// encodings are then handed to the DRM remover, signed DRM-free ones are
// renamed into place. On any failure neither the temporary nor the final
// path is left on disk and the original error is returned unchanged.
func (c *Client) Download(productID, outputPath string) (string, error) {
	access, err := c.contentAccess(productID, DisplayProfile)
	if err != nil {
		return "", err
	}

	contentKeys := access.keys()
	downloadURL, hasDrm, err := downloadInfo(productID, access)
	if err != nil {
		return "", err
	}

	temporaryPath := outputPath + temporarySuffix
	if err := c.materialize(downloadURL, hasDrm, contentKeys, temporaryPath, outputPath); err != nil {
		removeIfExists(temporaryPath)
		removeIfExists(outputPath)
		return "", err
	}

	c.log.Debug().Str("product_id", productID).Str("path", outputPath).Msg("download finished")
	return outputPath, nil
}

func (c *Client) materialize(downloadURL string, hasDrm bool, contentKeys map[string]string, temporaryPath, outputPath string) error {
	if err := c.downloadToFile(downloadURL, temporaryPath); err != nil {
		return err
	}

	if hasDrm {
		if c.drm == nil {
			return fmt.Errorf("book requires DRM removal but no remover is configured")
		}
		if err := c.drm.RemoveDrm(temporaryPath, outputPath, contentKeys); err != nil {
			return err
		}
		return os.Remove(temporaryPath)
	}

	return os.Rename(temporaryPath, outputPath)
}

// contentAccess fetches the content access descriptor for a product. It is
// never cached; every download starts from a fresh descriptor.
func (c *Client) contentAccess(productID, displayProfile string) (*ContentAccess, error) {
	u, err := c.resource("content_access_book")
	if err != nil {
		return nil, err
	}
	u = strings.ReplaceAll(u, "{ProductId}", productID)

	parsed, err := url.Parse(u)
	if err != nil {
		return nil, fmt.Errorf("failed to parse content_access_book URL: %w", err)
	}
	query := parsed.Query()
	query.Set("DisplayProfile", displayProfile)
	parsed.RawQuery = query.Encode()

	var access ContentAccess
	if _, err := c.getJSON(parsed.String(), nil, &access); err != nil {
		return nil, err
	}
	return &access, nil
}

// downloadInfo scans the descriptor's URL list in server order and returns
// the first entry with a supported DRM type and format. An empty list most
// likely means an archived book; a list with no qualifying entry reports
// every observed pair so new formats can be spotted.
func downloadInfo(productID string, access *ContentAccess) (downloadURL string, hasDrm bool, err error) {
	if access.ContentURLs == nil {
		return "", false, protocolErrorf("download URL can't be found for product %q", productID)
	}
	if len(access.ContentURLs) == 0 {
		return "", false, protocolErrorf(
			"download URL list is empty for product %q; if this is an archived book then it must be unarchived first on the Kobo website",
			productID)
	}

	for _, cu := range access.ContentURLs {
		if contains(supportedDRMTypes, cu.DRMType) && contains(supportedFormats, cu.URLFormat) {
			return cu.DownloadURL, cu.DRMType == "KDRM", nil
		}
	}

	var msg strings.Builder
	fmt.Fprintf(&msg, "download URL for supported formats can't be found for product %q; available formats:", productID)
	for _, cu := range access.ContentURLs {
		fmt.Fprintf(&msg, "\nDRMType: %q, UrlFormat: %q", cu.DRMType, cu.URLFormat)
	}
	return "", false, &ProtocolError{Message: msg.String()}
}

// downloadToFile streams a URL to disk in fixed-size chunks. The artifact
// URLs are pre-signed, so the request carries no authorization header.
func (c *Client) downloadToFile(downloadURL, outputPath string) error {
	req, err := c.newRequest(http.MethodGet, downloadURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp, err = checkStatus(resp)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	file, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer file.Close()

	bar := progressbar.NewOptions64(
		resp.ContentLength,
		progressbar.OptionSetWriter(c.progress),
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	buf := make([]byte, downloadChunkSize)
	if _, err := io.CopyBuffer(io.MultiWriter(file, bar), resp.Body, buf); err != nil {
		return err
	}
	fmt.Fprintln(c.progress)

	return file.Close()
}

func removeIfExists(path string) {
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

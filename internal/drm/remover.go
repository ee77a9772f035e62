// Package drm removes Kobo KDRM protection from downloaded KEPUB archives.
//
// A KDRM book is an ordinary EPUB zip whose content documents are encrypted
// with AES-128-ECB and PKCS#7 padding. The per-entry keys arrive wrapped in
// the content access response; unwrapping them takes a device key derived
// from the device id and user id the book was purchased under.
package drm

import (
	"archive/zip"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
)

// Remover implements kobo.DrmRemover for one device/user identity.
type Remover struct {
	deviceID string
	userID   string
}

// NewRemover creates a remover bound to the identity the book belongs to.
func NewRemover(deviceID, userID string) *Remover {
	return &Remover{deviceID: deviceID, userID: userID}
}

// RemoveDrm rewrites the archive at inputPath to outputPath, decrypting
// every entry that has a wrapped key in contentKeys and copying the rest
// untouched.
func (r *Remover) RemoveDrm(inputPath, outputPath string, contentKeys map[string]string) error {
	deviceKey := r.deviceKey()

	reader, err := zip.OpenReader(inputPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", inputPath, err)
	}
	defer reader.Close()

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	for _, entry := range reader.File {
		if err := r.writeEntry(writer, entry, deviceKey, contentKeys); err != nil {
			writer.Close()
			return fmt.Errorf("failed to process %s: %w", entry.Name, err)
		}
	}

	if err := writer.Close(); err != nil {
		return err
	}
	return out.Close()
}

func (r *Remover) writeEntry(writer *zip.Writer, entry *zip.File, deviceKey []byte, contentKeys map[string]string) error {
	src, err := entry.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	if wrapped, ok := contentKeys[entry.Name]; ok {
		key, err := unwrapKey(deviceKey, wrapped)
		if err != nil {
			return err
		}
		data, err = decrypt(key, data)
		if err != nil {
			return err
		}
	}

	// The mimetype entry must stay first and uncompressed for the archive
	// to remain a valid EPUB.
	method := zip.Deflate
	if entry.Name == "mimetype" {
		method = zip.Store
	}
	dst, err := writer.CreateHeader(&zip.FileHeader{Name: entry.Name, Method: method})
	if err != nil {
		return err
	}
	_, err = dst.Write(data)
	return err
}

// deviceKey derives the key-unwrapping key from the device and user ids.
func (r *Remover) deviceKey() []byte {
	sum := sha256.Sum256([]byte(r.deviceID + r.userID))
	return sum[16:]
}

// unwrapKey decodes a wrapped content key and decrypts it with the device
// key, yielding the per-entry AES key.
func unwrapKey(deviceKey []byte, wrapped string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decode content key: %w", err)
	}
	return decryptECB(deviceKey, raw)
}

// decrypt strips the AES-128-ECB layer and the PKCS#7 padding from an
// archive entry.
func decrypt(key, data []byte) ([]byte, error) {
	plain, err := decryptECB(key, data)
	if err != nil {
		return nil, err
	}
	return stripPadding(plain)
}

func decryptECB(key, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("encrypted data is not a multiple of the block size")
	}

	plain := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Decrypt(plain[i:], data[i:])
	}
	return plain, nil
}

func stripPadding(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("decrypted data is empty")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	return data[:len(data)-padding], nil
}

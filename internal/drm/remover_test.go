package drm

import (
	"archive/zip"
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func encryptECB(t *testing.T, key, data []byte) []byte {
	t.Helper()
	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}
	if len(data)%block.BlockSize() != 0 {
		t.Fatalf("plaintext length %d is not block aligned", len(data))
	}
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += block.BlockSize() {
		block.Encrypt(out[i:], data[i:])
	}
	return out
}

func pkcs7Pad(data []byte) []byte {
	padding := aes.BlockSize - len(data)%aes.BlockSize
	padded := make([]byte, len(data), len(data)+padding)
	copy(padded, data)
	for i := 0; i < padding; i++ {
		padded = append(padded, byte(padding))
	}
	return padded
}

// buildArchive writes a minimal KDRM KEPUB: a plain mimetype entry and
// container document, plus encrypted chapters.
func buildArchive(t *testing.T, path string, plain map[string]string, encrypted map[string][]byte) {
	t.Helper()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	defer out.Close()

	writer := zip.NewWriter(out)
	for name, content := range plain {
		w, err := writer.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	for name, content := range encrypted {
		w, err := writer.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to finish archive: %v", err)
	}
}

func readArchive(t *testing.T, path string) (map[string]string, []*zip.File) {
	t.Helper()

	reader, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open archive: %v", err)
	}
	defer reader.Close()

	entries := make(map[string]string, len(reader.File))
	for _, entry := range reader.File {
		src, err := entry.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", entry.Name, err)
		}
		data, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			t.Fatalf("failed to read %s: %v", entry.Name, err)
		}
		entries[entry.Name] = string(data)
	}
	return entries, reader.File
}

func TestRemoveDrm(t *testing.T) {
	const (
		deviceID = "device-1"
		userID   = "user-1"
	)

	sum := sha256.Sum256([]byte(deviceID + userID))
	deviceKey := sum[16:]

	chapterKey := bytes.Repeat([]byte{0x2a}, 16)
	wrappedKey := base64.StdEncoding.EncodeToString(encryptECB(t, deviceKey, chapterKey))

	chapterText := "<html><body>Chapter one, in the clear.</body></html>"
	encryptedChapter := encryptECB(t, chapterKey, pkcs7Pad([]byte(chapterText)))

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "book.epub.downloading")
	outputPath := filepath.Join(dir, "book.epub")

	buildArchive(t, inputPath,
		map[string]string{
			"mimetype":               "application/epub+zip",
			"META-INF/container.xml": "<container/>",
		},
		map[string][]byte{
			"OEBPS/ch1.html": encryptedChapter,
		})

	remover := NewRemover(deviceID, userID)
	keys := map[string]string{"OEBPS/ch1.html": wrappedKey}
	if err := remover.RemoveDrm(inputPath, outputPath, keys); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, files := readArchive(t, outputPath)

	if got := entries["OEBPS/ch1.html"]; got != chapterText {
		t.Errorf("decrypted chapter = %q, want %q", got, chapterText)
	}
	if got := entries["mimetype"]; got != "application/epub+zip" {
		t.Errorf("mimetype = %q", got)
	}
	if got := entries["META-INF/container.xml"]; got != "<container/>" {
		t.Errorf("container = %q", got)
	}

	for _, entry := range files {
		if entry.Name == "mimetype" && entry.Method != zip.Store {
			t.Error("mimetype entry must be stored uncompressed")
		}
	}
}

func TestRemoveDrm_MisalignedCiphertext(t *testing.T) {
	sum := sha256.Sum256([]byte("device-1user-1"))
	deviceKey := sum[16:]

	chapterKey := bytes.Repeat([]byte{0x2a}, 16)
	wrappedKey := base64.StdEncoding.EncodeToString(encryptECB(t, deviceKey, chapterKey))

	dir := t.TempDir()
	inputPath := filepath.Join(dir, "book.epub.downloading")
	// 17 bytes is not a multiple of the AES block size.
	buildArchive(t, inputPath, nil, map[string][]byte{"OEBPS/ch1.html": make([]byte, 17)})

	remover := NewRemover("device-1", "user-1")
	err := remover.RemoveDrm(inputPath, filepath.Join(dir, "book.epub"),
		map[string]string{"OEBPS/ch1.html": wrappedKey})
	if err == nil {
		t.Fatal("expected error for misaligned ciphertext, got nil")
	}
}

func TestRemoveDrm_MalformedWrappedKey(t *testing.T) {
	dir := t.TempDir()
	inputPath := filepath.Join(dir, "book.epub.downloading")
	buildArchive(t, inputPath, nil, map[string][]byte{"OEBPS/ch1.html": make([]byte, 16)})

	remover := NewRemover("device-1", "user-1")
	err := remover.RemoveDrm(inputPath, filepath.Join(dir, "book.epub"),
		map[string]string{"OEBPS/ch1.html": "not base64!"})
	if err == nil {
		t.Fatal("expected error for a malformed key, got nil")
	}
}

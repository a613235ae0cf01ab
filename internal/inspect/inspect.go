// Package inspect builds the upload description of a local file: name, size,
// sniffed MIME type, and page count for PDFs.
package inspect

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/hyperjump/docchat/internal/models"
)

const genericType = "application/octet-stream"

// File stats and sniffs the file at path. Page counting is best effort;
// a PDF whose pages cannot be counted still yields a File with Pages == 0.
func File(path string) (models.File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return models.File{}, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.File{}, fmt.Errorf("stat file: %w", err)
	}
	if info.IsDir() {
		return models.File{}, fmt.Errorf("%s is a directory", abs)
	}
	typ, err := DetectType(abs)
	if err != nil {
		return models.File{}, err
	}
	f := models.File{
		Name: filepath.Base(abs),
		Type: typ,
		Size: info.Size(),
		Path: abs,
	}
	if strings.Contains(typ, "pdf") {
		if n, err := CountPages(abs); err == nil {
			f.Pages = n
		}
	}
	return f, nil
}

// DetectType sniffs the MIME type from content, falling back to the file
// extension when the content is not recognised.
func DetectType(path string) (string, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detect type: %w", err)
	}
	typ := mt.String()
	if i := strings.IndexByte(typ, ';'); i >= 0 {
		typ = typ[:i]
	}
	if typ == genericType {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); byExt != "" {
			typ = byExt
		}
	}
	return typ, nil
}

package inspect

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

// CountPages returns the number of pages of the PDF at path.
func CountPages(path string) (n int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat PDF: %w", err)
	}
	// the pdf reader panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read PDF: %v", r)
		}
	}()
	r, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return 0, fmt.Errorf("open PDF: %w", err)
	}
	return r.NumPage(), nil
}

package ocr

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

// PageCount reads the number of pages in a PDF held in memory.
func PageCount(data []byte) (n int, err error) {
	// The pdf reader panics on some malformed trailers.
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("open pdf for page count: %w", err)
	}
	numPages := r.NumPage()
	if numPages == 0 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return numPages, nil
}

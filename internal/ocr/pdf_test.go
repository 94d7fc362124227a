package ocr

import (
	"testing"

	"siyuan-ocr/internal/ocr/ocrtest"
)

func TestPageCount(t *testing.T) {
	for _, want := range []int{1, 3, 12} {
		got, err := PageCount(ocrtest.PDF(want))
		if err != nil {
			t.Fatalf("PageCount(%d-page pdf): %v", want, err)
		}
		if got != want {
			t.Errorf("PageCount = %d, want %d", got, want)
		}
	}
}

func TestPageCount_RejectsNonPDF(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("not a pdf"), []byte("%PDF-1.4\ntruncated"), ocrtest.PDF(0)} {
		if n, err := PageCount(data); err == nil {
			t.Errorf("PageCount(%q) = %d, want error", data, n)
		}
	}
}

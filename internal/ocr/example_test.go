package ocr_test

import (
	"context"
	"fmt"
	"log"

	"siyuan-ocr/internal/models"
	"siyuan-ocr/internal/ocr"
)

func ExampleMimeType() {
	fmt.Println(ocr.MimeType("scan.pdf"))
	fmt.Println(ocr.MimeType("photo.JPG"))
	fmt.Println(ocr.MimeType("notes.docx"))
	// Output:
	// application/pdf
	// image/jpeg
	// application/octet-stream
}

func ExampleNewProvider() {
	provider, err := ocr.NewProvider(models.ProviderConfig{
		Kind:   models.ProviderMistral,
		APIKey: "your-mistral-api-key",
	})
	if err != nil {
		log.Fatal(err)
	}

	result, err := provider.Process(context.Background(), ocr.File{
		Name: "document.pdf",
		Data: []byte("%PDF-1.7 ..."),
	})
	if err != nil {
		log.Fatal(err)
	}

	for _, page := range result.Pages {
		fmt.Printf("Page %d: %d images\n", page.PageNumber, len(page.Images))
	}
}

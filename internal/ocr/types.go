package ocr

import (
	"context"
	"fmt"
)

// Provider turns a document into a provider-agnostic Result.
type Provider interface {
	Process(ctx context.Context, file File) (*Result, error)
}

// File is the raw upload handed to a provider.
type File struct {
	Name string
	Data []byte
}

// Result is the normalized OCR output. Page order is document order.
type Result struct {
	Pages      []Page `json:"pages"`
	TotalPages int    `json:"totalPages"`
	Model      string `json:"model,omitempty"`
}

// Page is a single recognized page.
type Page struct {
	PageNumber int     `json:"pageNumber"` // 1-based
	Markdown   string  `json:"markdown"`
	Images     []Image `json:"images,omitempty"`
}

// Image is an embedded image referenced by ID from its page's markdown.
// An empty Base64 marks a reference-only placeholder.
type Image struct {
	ID     string `json:"id"`
	Base64 string `json:"base64,omitempty"`
}

// ImageCount counts every image, with or without a payload.
func (r *Result) ImageCount() int {
	if r == nil {
		return 0
	}
	total := 0
	for _, page := range r.Pages {
		total += len(page.Images)
	}
	return total
}

// ConfigurationError reports a provider config that cannot be used.
// It is never retried.
type ConfigurationError struct {
	Kind    string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Kind)
	}
	return e.Message
}

// APIError is a non-success HTTP response from the OCR provider.
type APIError struct {
	Provider string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s OCR API error: %d - %s", e.Provider, e.Status, e.Body)
}

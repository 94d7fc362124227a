package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"siyuan-ocr/internal/models"
)

// mistralProvider calls the Mistral OCR endpoint.
type mistralProvider struct {
	apiKey     string
	url        string
	model      string
	httpClient *http.Client
}

func newMistralProvider(cfg models.ProviderConfig, client *http.Client) *mistralProvider {
	url := cfg.URL
	if url == "" {
		url = models.DefaultMistralURL
	}
	model := cfg.Model
	if model == "" {
		model = models.DefaultMistralModel
	}
	return &mistralProvider{
		apiKey:     cfg.APIKey,
		url:        url,
		model:      model,
		httpClient: client,
	}
}

type mistralDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralRequest struct {
	Model              string          `json:"model"`
	Document           mistralDocument `json:"document"`
	IncludeImageBase64 bool            `json:"include_image_base64"`
}

type mistralImage struct {
	ID           string `json:"id"`
	TopLeftX     int    `json:"top_left_x"`
	TopLeftY     int    `json:"top_left_y"`
	BottomRightX int    `json:"bottom_right_x"`
	BottomRightY int    `json:"bottom_right_y"`
	ImageBase64  string `json:"image_base64,omitempty"`
}

type mistralPage struct {
	Index    int            `json:"index"`
	Markdown string         `json:"markdown"`
	Images   []mistralImage `json:"images,omitempty"`
}

type mistralResponse struct {
	Pages []mistralPage `json:"pages"`
	Model string        `json:"model"`
	Usage struct {
		PagesProcessed int `json:"pages_processed"`
		DocSizeBytes   int `json:"doc_size_bytes,omitempty"`
	} `json:"usage"`
}

func (p *mistralProvider) Process(ctx context.Context, file File) (*Result, error) {
	request := mistralRequest{
		Model: p.model,
		Document: mistralDocument{
			Type:        "document_url",
			DocumentURL: DataURI(file.Name, file.Data),
		},
		IncludeImageBase64: true,
	}

	reqBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal ocr request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute ocr request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Provider: "Mistral",
			Status:   resp.StatusCode,
			Body:     string(body),
		}
	}

	var parsed mistralResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal ocr response: %w", err)
	}

	return normalizeMistral(&parsed), nil
}

// normalizeMistral maps each page's 0-based index to a 1-based page number,
// keeping response order.
func normalizeMistral(resp *mistralResponse) *Result {
	pages := make([]Page, 0, len(resp.Pages))
	for _, page := range resp.Pages {
		var images []Image
		if len(page.Images) > 0 {
			images = make([]Image, 0, len(page.Images))
			for _, img := range page.Images {
				images = append(images, Image{ID: img.ID, Base64: img.ImageBase64})
			}
		}
		pages = append(pages, Page{
			PageNumber: page.Index + 1,
			Markdown:   page.Markdown,
			Images:     images,
		})
	}

	return &Result{
		Pages:      pages,
		TotalPages: len(resp.Pages),
		Model:      resp.Model,
	}
}

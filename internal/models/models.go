package models

import "time"

// ProviderKind is the closed set of OCR providers a config can name.
type ProviderKind string

const (
	ProviderMistral ProviderKind = "mistral"
	// ProviderCustom can be persisted but has no normalization branch yet.
	ProviderCustom ProviderKind = "custom"
)

const (
	DefaultMistralURL   = "https://api.mistral.ai/v1/ocr"
	DefaultMistralModel = "mistral-ocr-latest"
	DefaultProviderName = "OCR API"
)

// ProviderConfig is one configured OCR endpoint. JSON names match the
// persisted plugin storage.
type ProviderConfig struct {
	ID          string       `json:"id" yaml:"id"`
	DisplayName string       `json:"displayName" yaml:"displayName"`
	Kind        ProviderKind `json:"apiType" yaml:"apiType"`
	URL         string       `json:"apiUrl" yaml:"apiUrl"`
	APIKey      string       `json:"apiKey" yaml:"apiKey"`
	Model       string       `json:"model,omitempty" yaml:"model,omitempty"`
}

// Masked returns a copy safe to hand to the dock front-end.
func (p ProviderConfig) Masked() ProviderConfig {
	out := p
	switch n := len(p.APIKey); {
	case n == 0:
	case n <= 8:
		out.APIKey = "********"
	default:
		out.APIKey = p.APIKey[:4] + "****" + p.APIKey[n-4:]
	}
	return out
}

// PluginStorage is the "ocr-config" blob.
type PluginStorage struct {
	APIs              []ProviderConfig `json:"apis"`
	LastSelectedAPIID string           `json:"lastSelectedApiId,omitempty"`
	LastNotebookID    string           `json:"lastNotebookId,omitempty"`
	LastPath          string           `json:"lastPath,omitempty"`
}

// PluginState is the "ocr-state" blob: the dock's last selections.
type PluginState struct {
	LastSelectedAPIID string `json:"lastSelectedApiId"`
	LastNotebookID    string `json:"lastNotebookId"`
	LastPath          string `json:"lastPath"`
}

// Notebook is a top-level document collection in the notes host.
type Notebook struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Sort   int    `json:"sort"`
	Closed bool   `json:"closed"`
}

// Document is a note created by the local backend.
type Document struct {
	ID         string    `json:"id"`
	NotebookID string    `json:"notebookId"`
	Path       string    `json:"path"`
	Markdown   string    `json:"markdown"`
	CreatedAt  time.Time `json:"createdAt"`
}

package ocr

import (
	"net/http"
	"time"

	"siyuan-ocr/internal/models"
)

// Option tweaks provider construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
}

// WithHTTPClient replaces the default HTTP client, e.g. to set a timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// NewProvider selects the normalization branch for cfg.Kind. Kinds without a
// branch fail immediately with a ConfigurationError.
func NewProvider(cfg models.ProviderConfig, opts ...Option) (Provider, error) {
	o := options{
		httpClient: &http.Client{
			Timeout: 300 * time.Second, // 5 minutes timeout
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	switch cfg.Kind {
	case models.ProviderMistral:
		return newMistralProvider(cfg, o.httpClient), nil
	default:
		return nil, &ConfigurationError{
			Kind:    string(cfg.Kind),
			Message: "Unsupported API type",
		}
	}
}

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"siyuan-ocr/internal/models"
)

// Plugin data blob names.
const (
	ConfigKey = "ocr-config"
	StateKey  = "ocr-state"
)

// DefaultTargetPath is used when no target path was ever chosen.
const DefaultTargetPath = "/"

// ProviderInput is the editable part of a provider config. An empty APIKey
// on update keeps the stored key, since listings only ever show it masked.
type ProviderInput struct {
	DisplayName string              `json:"displayName" yaml:"displayName"`
	Kind        models.ProviderKind `json:"apiType" yaml:"apiType"`
	URL         string              `json:"apiUrl" yaml:"apiUrl"`
	APIKey      string              `json:"apiKey" yaml:"apiKey"`
	Model       string              `json:"model" yaml:"model"`
}

// SettingsService persists provider configs and the dock's last selections
// as JSON blobs in plugin_data.
type SettingsService struct {
	db     *sql.DB
	logger *slog.Logger
	mu     sync.Mutex
}

func NewSettingsService(db *sql.DB, logger *slog.Logger) *SettingsService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsService{db: db, logger: logger}
}

func (s *SettingsService) ListProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cfg.APIs, nil
}

func (s *SettingsService) GetProvider(ctx context.Context, id string) (*models.ProviderConfig, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range cfg.APIs {
		if p.ID == id {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
}

func (s *SettingsService) AddProvider(ctx context.Context, in ProviderInput) (*models.ProviderConfig, error) {
	provider := applyProviderDefaults(models.ProviderConfig{
		ID:          "api_" + uuid.NewString(),
		DisplayName: in.DisplayName,
		Kind:        in.Kind,
		URL:         in.URL,
		APIKey:      in.APIKey,
		Model:       in.Model,
	})
	if err := validateProvider(provider); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.APIs = append(cfg.APIs, provider)
	if err := s.saveBlob(ctx, ConfigKey, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("provider added", "id", provider.ID, "kind", provider.Kind)
	return &provider, nil
}

func (s *SettingsService) UpdateProvider(ctx context.Context, id string, in ProviderInput) (*models.ProviderConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, p := range cfg.APIs {
		if p.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}

	updated := models.ProviderConfig{
		ID:          id,
		DisplayName: in.DisplayName,
		Kind:        in.Kind,
		URL:         in.URL,
		APIKey:      in.APIKey,
		Model:       in.Model,
	}
	// Listings hand out masked keys; echoing one back keeps the stored key.
	if stored := cfg.APIs[idx]; updated.APIKey == "" || updated.APIKey == stored.Masked().APIKey {
		updated.APIKey = stored.APIKey
	}
	updated = applyProviderDefaults(updated)
	if err := validateProvider(updated); err != nil {
		return nil, err
	}

	cfg.APIs[idx] = updated
	if err := s.saveBlob(ctx, ConfigKey, cfg); err != nil {
		return nil, err
	}
	s.logger.Info("provider updated", "id", id)
	return &updated, nil
}

func (s *SettingsService) DeleteProvider(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return err
	}
	kept := cfg.APIs[:0]
	for _, p := range cfg.APIs {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(cfg.APIs) {
		return fmt.Errorf("provider %s: %w", id, ErrNotFound)
	}
	cfg.APIs = kept
	if err := s.saveBlob(ctx, ConfigKey, cfg); err != nil {
		return err
	}
	s.logger.Info("provider deleted", "id", id)
	return nil
}

// LoadState returns the last selections. Values saved in the state blob win
// over the legacy fields of the config blob; the path defaults to "/".
func (s *SettingsService) LoadState(ctx context.Context) (models.PluginState, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return models.PluginState{}, err
	}

	var saved struct {
		LastSelectedAPIID *string `json:"lastSelectedApiId"`
		LastNotebookID    *string `json:"lastNotebookId"`
		LastPath          *string `json:"lastPath"`
	}
	if _, err := s.loadBlob(ctx, StateKey, &saved); err != nil {
		return models.PluginState{}, err
	}

	state := models.PluginState{
		LastSelectedAPIID: firstSet(saved.LastSelectedAPIID, cfg.LastSelectedAPIID),
		LastNotebookID:    firstSet(saved.LastNotebookID, cfg.LastNotebookID),
		LastPath:          firstSet(saved.LastPath, cfg.LastPath),
	}
	if state.LastPath == "" {
		state.LastPath = DefaultTargetPath
	}
	return state, nil
}

func (s *SettingsService) SaveState(ctx context.Context, state models.PluginState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveBlob(ctx, StateKey, state)
}

type providersFile struct {
	Providers []models.ProviderConfig `yaml:"providers"`
}

// ImportProvidersFile seeds providers from a YAML file of the form
//
//	providers:
//	  - id: api_mistral
//	    displayName: Mistral
//	    apiType: mistral
//	    apiKey: ...
//
// Providers whose id already exists are left untouched. It returns the
// number of providers added.
func (s *SettingsService) ImportProvidersFile(ctx context.Context, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read providers file: %w", err)
	}
	var file providersFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return 0, fmt.Errorf("parse providers file %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return 0, err
	}
	existing := make(map[string]bool, len(cfg.APIs))
	for _, p := range cfg.APIs {
		existing[p.ID] = true
	}

	added := 0
	for _, p := range file.Providers {
		if p.ID == "" {
			p.ID = "api_" + uuid.NewString()
		}
		if existing[p.ID] {
			continue
		}
		p = applyProviderDefaults(p)
		if err := validateProvider(p); err != nil {
			s.logger.Warn("skipping invalid provider from file", "id", p.ID, "path", path, "error", err)
			continue
		}
		cfg.APIs = append(cfg.APIs, p)
		existing[p.ID] = true
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := s.saveBlob(ctx, ConfigKey, cfg); err != nil {
		return 0, err
	}
	s.logger.Info("imported providers", "path", path, "count", added)
	return added, nil
}

// Uninstall removes the stored provider configuration.
func (s *SettingsService) Uninstall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plugin_data WHERE name = ?;`, ConfigKey); err != nil {
		return fmt.Errorf("remove %s: %w", ConfigKey, err)
	}
	return nil
}

func (s *SettingsService) loadConfig(ctx context.Context) (models.PluginStorage, error) {
	var cfg models.PluginStorage
	if _, err := s.loadBlob(ctx, ConfigKey, &cfg); err != nil {
		return models.PluginStorage{}, err
	}
	if cfg.APIs == nil {
		cfg.APIs = []models.ProviderConfig{}
	}
	return cfg, nil
}

func (s *SettingsService) loadBlob(ctx context.Context, name string, out any) (bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM plugin_data WHERE name = ?;`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

func (s *SettingsService) saveBlob(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO plugin_data (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at;
	`, name, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

func applyProviderDefaults(p models.ProviderConfig) models.ProviderConfig {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
	p.URL = strings.TrimSpace(p.URL)
	p.Model = strings.TrimSpace(p.Model)
	if p.DisplayName == "" {
		p.DisplayName = models.DefaultProviderName
	}
	if p.Kind == "" {
		p.Kind = models.ProviderMistral
	}
	if p.Kind == models.ProviderMistral {
		if p.URL == "" {
			p.URL = models.DefaultMistralURL
		}
		if p.Model == "" {
			p.Model = models.DefaultMistralModel
		}
	}
	return p
}

func validateProvider(p models.ProviderConfig) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.Kind,
			validation.Required,
			validation.In(models.ProviderMistral, models.ProviderCustom),
		),
		validation.Field(&p.URL, validation.By(httpURL)),
		validation.Field(&p.APIKey, validation.Required),
	)
	if err != nil {
		return &ValidationError{Message: "invalid provider", Err: err}
	}
	return nil
}

func httpURL(value interface{}) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an http(s) URL")
	}
	return nil
}

func firstSet(preferred *string, fallback string) string {
	if preferred != nil {
		return *preferred
	}
	return fallback
}

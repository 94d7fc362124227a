package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"siyuan-ocr/internal/services"
)

// ConversionSnapshot is what the dock polls while a conversion runs.
type ConversionSnapshot struct {
	services.ConversionState
	ID         string    `json:"conversionId,omitempty"`
	FileName   string    `json:"fileName,omitempty"`
	NotebookID string    `json:"notebookId,omitempty"`
	Path       string    `json:"path,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Tracker holds the single current conversion. Only one conversion may be
// processing at a time; finished ones stay visible until the next Begin.
type Tracker struct {
	mu      sync.RWMutex
	current ConversionSnapshot
}

func NewTracker() *Tracker {
	return &Tracker{
		current: ConversionSnapshot{ConversionState: services.IdleState()},
	}
}

// Begin registers a new conversion in the processing phase. It fails with
// services.ErrConversionInProgress while another one is processing.
func (t *Tracker) Begin(fileName, notebookID, path string) (ConversionSnapshot, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.IsProcessing {
		return ConversionSnapshot{}, services.ErrConversionInProgress
	}
	now := time.Now().UTC()
	t.current = ConversionSnapshot{
		ConversionState: services.StartConversion(services.MessageConverting),
		ID:              uuid.NewString(),
		FileName:        fileName,
		NotebookID:      notebookID,
		Path:            path,
		StartedAt:       now,
		UpdatedAt:       now,
	}
	return t.current, nil
}

// Update replaces the state of conversion id. Updates for a conversion that
// is no longer current are dropped.
func (t *Tracker) Update(id string, state services.ConversionState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current.ID != id {
		return
	}
	t.current.ConversionState = state
	t.current.UpdatedAt = time.Now().UTC()
}

// Current returns a copy of the current conversion.
func (t *Tracker) Current() ConversionSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

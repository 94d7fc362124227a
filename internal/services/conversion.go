package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"siyuan-ocr/internal/models"
	"siyuan-ocr/internal/ocr"
)

// Phase is the lifecycle stage of a conversion.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseProcessing Phase = "processing"
	PhaseSuccess    Phase = "success"
	PhaseFailed     Phase = "failed"
)

const (
	MessageConverting = "Converting..."
	MessageSuccess    = "Conversion completed"
	FailurePrefix     = "Conversion failed"
)

// ConversionState is an immutable snapshot of one conversion. Transitions
// return a new value and leave the receiver untouched.
type ConversionState struct {
	Phase         Phase  `json:"phase"`
	IsProcessing  bool   `json:"isProcessing"`
	Progress      int    `json:"progress"`
	StatusMessage string `json:"statusMessage"`
	Error         string `json:"error,omitempty"`
	ResultDocID   string `json:"resultDocId,omitempty"`
}

func IdleState() ConversionState {
	return ConversionState{Phase: PhaseIdle}
}

func StartConversion(message string) ConversionState {
	return ConversionState{
		Phase:         PhaseProcessing,
		IsProcessing:  true,
		Progress:      0,
		StatusMessage: message,
	}
}

// Terminal reports whether the conversion has finished either way.
func (s ConversionState) Terminal() bool {
	return s.Phase == PhaseSuccess || s.Phase == PhaseFailed
}

// Advance moves progress forward. Progress is clamped to [0, 100] and never
// goes backwards. Outside processing it is a no-op.
func (s ConversionState) Advance(progress int, message string) ConversionState {
	if s.Phase != PhaseProcessing {
		return s
	}
	progress = min(max(progress, 0), 100)
	next := s
	if progress > next.Progress {
		next.Progress = progress
	}
	next.StatusMessage = message
	return next
}

func (s ConversionState) Succeed(docID, message string) ConversionState {
	if s.Phase != PhaseProcessing {
		return s
	}
	return ConversionState{
		Phase:         PhaseSuccess,
		Progress:      100,
		StatusMessage: message,
		ResultDocID:   docID,
	}
}

func (s ConversionState) Fail(prefix string, err error) ConversionState {
	if s.Phase != PhaseProcessing {
		return s
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ConversionState{
		Phase: PhaseFailed,
		Error: fmt.Sprintf("%s: %s", prefix, msg),
	}
}

// ConversionRequest is everything the dock submits for one conversion.
type ConversionRequest struct {
	ProviderID   string
	NotebookID   string
	TargetPath   string
	DocumentName string
	File         ocr.File
}

// DocumentPath joins the target folder with the document name, falling back
// to the file name without its extension.
func (r ConversionRequest) DocumentPath() string {
	name := strings.TrimSpace(r.DocumentName)
	if name == "" {
		name = trimExtension(r.File.Name)
	}
	dir := r.TargetPath
	if dir == "" {
		dir = DefaultTargetPath
	}
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return dir + name
}

func trimExtension(name string) string {
	i := strings.LastIndex(name, ".")
	if i < 0 || strings.Contains(name[i:], "/") {
		return name
	}
	return name[:i]
}

// ProviderFactory builds an OCR provider from a stored config.
type ProviderFactory func(cfg models.ProviderConfig) (ocr.Provider, error)

// ProviderSource is the part of SettingsService a conversion needs.
type ProviderSource interface {
	GetProvider(ctx context.Context, id string) (*models.ProviderConfig, error)
	SaveState(ctx context.Context, state models.PluginState) error
}

// ConversionService runs one conversion end to end: OCR, asset upload and
// document creation.
type ConversionService struct {
	providers   ProviderSource
	assembler   *DocumentAssembler
	newProvider ProviderFactory
	logger      *slog.Logger
}

func NewConversionService(providers ProviderSource, assembler *DocumentAssembler, factory ProviderFactory, logger *slog.Logger) *ConversionService {
	if logger == nil {
		logger = slog.Default()
	}
	if factory == nil {
		factory = func(cfg models.ProviderConfig) (ocr.Provider, error) {
			return ocr.NewProvider(cfg)
		}
	}
	return &ConversionService{
		providers:   providers,
		assembler:   assembler,
		newProvider: factory,
		logger:      logger,
	}
}

// Validate checks a request and resolves its provider. Failures are
// *ValidationError unless the provider store itself failed.
func (s *ConversionService) Validate(ctx context.Context, req ConversionRequest) (*models.ProviderConfig, error) {
	err := validation.ValidateStruct(&req,
		validation.Field(&req.ProviderID, validation.Required.Error("select an OCR API")),
		validation.Field(&req.NotebookID, validation.Required.Error("select a notebook")),
	)
	if err == nil {
		err = validation.ValidateStruct(&req.File,
			validation.Field(&req.File.Name,
				validation.Required.Error("select a file"),
				validation.By(supportedFile),
			),
			validation.Field(&req.File.Data, validation.Required.Error("file is empty")),
		)
	}
	if err != nil {
		return nil, &ValidationError{Message: "invalid conversion request", Err: err}
	}

	provider, err := s.providers.GetProvider(ctx, req.ProviderID)
	if errors.Is(err, ErrNotFound) {
		return nil, &ValidationError{Message: "unknown OCR API", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return provider, nil
}

func supportedFile(value interface{}) error {
	name, _ := value.(string)
	if name != "" && !ocr.IsFileSupported(name) {
		return fmt.Errorf("unsupported file type, expected one of %s", strings.Join(ocr.SupportedExtensions(), ", "))
	}
	return nil
}

// Convert runs the conversion and reports every state change to observer.
// A validation failure returns before the conversion enters processing.
func (s *ConversionService) Convert(ctx context.Context, req ConversionRequest, observer func(ConversionState)) (ConversionState, error) {
	if observer == nil {
		observer = func(ConversionState) {}
	}

	providerCfg, err := s.Validate(ctx, req)
	if err != nil {
		return IdleState(), err
	}

	if err := s.providers.SaveState(ctx, models.PluginState{
		LastSelectedAPIID: req.ProviderID,
		LastNotebookID:    req.NotebookID,
		LastPath:          req.TargetPath,
	}); err != nil {
		s.logger.Warn("failed to save dock state", "error", err)
	}

	state := StartConversion(MessageConverting)
	observer(state)

	fail := func(err error) (ConversionState, error) {
		state = state.Fail(FailurePrefix, err)
		s.logger.Error("conversion failed", "file", req.File.Name, "provider", req.ProviderID, "error", err)
		observer(state)
		return state, err
	}

	provider, err := s.newProvider(*providerCfg)
	if err != nil {
		return fail(err)
	}

	recognizing := MessageConverting
	if ocr.MimeType(req.File.Name) == "application/pdf" {
		if pages, err := ocr.PageCount(req.File.Data); err == nil {
			s.logger.Info("recognizing document", "file", req.File.Name, "pages", pages)
			recognizing = recognizingMessage(pages)
		} else {
			s.logger.Debug("could not count pdf pages", "file", req.File.Name, "error", err)
		}
	}

	state = state.Advance(10, recognizing)
	observer(state)

	result, err := provider.Process(ctx, req.File)
	if err != nil {
		return fail(err)
	}

	docPath := req.DocumentPath()
	state = state.Advance(25, MessageConverting)
	observer(state)

	docID, err := s.assembler.ProcessAndCreateDocument(ctx, result, req.NotebookID, docPath, func(p int, msg string) {
		state = state.Advance(p, msg)
		observer(state)
	})
	if err != nil {
		return fail(err)
	}

	state = state.Succeed(docID, MessageSuccess)
	s.logger.Info("conversion complete", "file", req.File.Name, "doc_id", docID, "path", docPath, "pages", result.TotalPages)
	observer(state)
	return state, nil
}

func recognizingMessage(pages int) string {
	if pages == 1 {
		return "Recognizing 1 page..."
	}
	return fmt.Sprintf("Recognizing %d pages...", pages)
}

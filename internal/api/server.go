package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"siyuan-ocr/internal/models"
	"siyuan-ocr/internal/ocr"
	"siyuan-ocr/internal/services"
	"siyuan-ocr/internal/siyuan"
	"siyuan-ocr/internal/storage"
)

const (
	maxMultipartMemory = 8 << 20  // 8 MB
	maxUploadBytes     = 64 << 20 // 64 MB
)

type Server struct {
	mux         *http.ServeMux
	settings    *services.SettingsService
	conversions *services.ConversionService
	notebooks   services.NotebookLister
	documents   services.DocumentReader
	tracker     *Tracker
	logger      *slog.Logger
}

// NewServer wires the dock API. documents may be nil when the notes backend
// cannot read documents back.
func NewServer(
	settings *services.SettingsService,
	conversions *services.ConversionService,
	notebooks services.NotebookLister,
	documents services.DocumentReader,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mux:         http.NewServeMux(),
		settings:    settings,
		conversions: conversions,
		notebooks:   notebooks,
		documents:   documents,
		tracker:     NewTracker(),
		logger:      logger,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/formats", s.handleFormats)

	s.mux.HandleFunc("GET /api/providers", s.handleListProviders)
	s.mux.HandleFunc("POST /api/providers", s.handleCreateProvider)
	s.mux.HandleFunc("PUT /api/providers/{id}", s.handleUpdateProvider)
	s.mux.HandleFunc("DELETE /api/providers/{id}", s.handleDeleteProvider)

	s.mux.HandleFunc("GET /api/notebooks", s.handleListNotebooks)
	s.mux.HandleFunc("POST /api/notebooks", s.handleCreateNotebook)

	s.mux.HandleFunc("GET /api/state", s.handleGetState)
	s.mux.HandleFunc("PUT /api/state", s.handleSaveState)

	s.mux.HandleFunc("POST /api/conversions", s.handleStartConversion)
	s.mux.HandleFunc("GET /api/conversions/current", s.handleCurrentConversion)

	s.mux.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)

	s.mux.HandleFunc("DELETE /api/config", s.handleUninstall)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	exts := ocr.SupportedExtensions()
	accept := make([]string, len(exts))
	for i, ext := range exts {
		accept[i] = "." + ext
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"extensions": exts,
		"accept":     strings.Join(accept, ","),
	})
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	providers, err := s.settings.ListProviders(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	out := make([]models.ProviderConfig, 0, len(providers))
	for _, p := range providers {
		out = append(out, p.Masked())
	}
	writeJSON(w, http.StatusOK, map[string]any{"providers": out})
}

func (s *Server) handleCreateProvider(w http.ResponseWriter, r *http.Request) {
	var in services.ProviderInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider, err := s.settings.AddProvider(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, provider.Masked())
}

func (s *Server) handleUpdateProvider(w http.ResponseWriter, r *http.Request) {
	var in services.ProviderInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	provider, err := s.settings.UpdateProvider(r.Context(), r.PathValue("id"), in)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, provider.Masked())
}

func (s *Server) handleDeleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.DeleteProvider(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	notebooks, err := s.notebooks.ListNotebooks(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if notebooks == nil {
		notebooks = []models.Notebook{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notebooks": notebooks})
}

func (s *Server) handleCreateNotebook(w http.ResponseWriter, r *http.Request) {
	creator, ok := s.notebooks.(services.NotebookCreator)
	if !ok {
		writeError(w, http.StatusNotFound, "notebooks can only be created with the local notes backend")
		return
	}
	var in struct {
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	notebook, err := creator.CreateNotebook(r.Context(), in.Name, in.Icon)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, notebook)
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := s.settings.LoadState(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	var state models.PluginState
	if err := decodeJSON(r, &state); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.settings.SaveState(r.Context(), state); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleStartConversion(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	req := services.ConversionRequest{
		ProviderID:   r.FormValue("providerId"),
		NotebookID:   r.FormValue("notebookId"),
		TargetPath:   r.FormValue("path"),
		DocumentName: r.FormValue("name"),
	}
	if file, header, err := r.FormFile("file"); err == nil {
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read uploaded file")
			return
		}
		req.File = ocr.File{Name: header.Filename, Data: data}
	}

	if _, err := s.conversions.Validate(r.Context(), req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	snapshot, err := s.tracker.Begin(req.File.Name, req.NotebookID, req.DocumentPath())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	go s.runConversion(context.Background(), snapshot.ID, req)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runConversion(ctx context.Context, id string, req services.ConversionRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("conversion panicked", "conversion_id", id, "error", rec)
			s.tracker.Update(id, services.StartConversion("").Fail(services.FailurePrefix, fmt.Errorf("%v", rec)))
		}
	}()

	final, err := s.conversions.Convert(ctx, req, func(state services.ConversionState) {
		s.tracker.Update(id, state)
	})
	if err != nil {
		s.logger.Warn("conversion finished with error", "conversion_id", id, "error", err)
	}
	s.tracker.Update(id, final)
}

func (s *Server) handleCurrentConversion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.tracker.Current())
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		writeError(w, http.StatusNotFound, "documents can only be read back from the local notes backend")
		return
	}
	doc, err := s.documents.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleUninstall(w http.ResponseWriter, r *http.Request) {
	if err := s.settings.Uninstall(r.Context()); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.logger.Info("provider configuration removed")
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps service errors onto HTTP status codes.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *services.ValidationError
		kernelErr     *siyuan.Error
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConversionInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &kernelErr):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

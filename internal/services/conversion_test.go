package services

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"siyuan-ocr/internal/models"
	"siyuan-ocr/internal/ocr"
	"siyuan-ocr/internal/ocr/ocrtest"
)

func TestConversionState_Transitions(t *testing.T) {
	start := StartConversion("Converting...")
	if start.Phase != PhaseProcessing || !start.IsProcessing || start.Progress != 0 {
		t.Fatalf("unexpected start state: %+v", start)
	}

	advanced := start.Advance(40, "Uploading")
	if start.Progress != 0 {
		t.Error("Advance mutated its receiver")
	}
	if advanced.Progress != 40 || advanced.StatusMessage != "Uploading" {
		t.Errorf("advanced = %+v", advanced)
	}
	if back := advanced.Advance(10, "late"); back.Progress != 40 || back.StatusMessage != "late" {
		t.Errorf("progress went backwards: %+v", back)
	}
	if over := advanced.Advance(250, "x"); over.Progress != 100 {
		t.Errorf("progress not clamped: %+v", over)
	}

	done := advanced.Succeed("doc-1", "ok")
	if done.Phase != PhaseSuccess || done.IsProcessing || done.Progress != 100 || done.ResultDocID != "doc-1" {
		t.Errorf("succeeded = %+v", done)
	}
	if !done.Terminal() {
		t.Error("success should be terminal")
	}
	if after := done.Fail(FailurePrefix, errors.New("late")); after != done {
		t.Errorf("Fail after success changed state: %+v", after)
	}
	if after := done.Advance(5, "x"); after != done {
		t.Errorf("Advance after success changed state: %+v", after)
	}

	failed := advanced.Fail(FailurePrefix, errors.New("boom"))
	if failed.Phase != PhaseFailed || failed.IsProcessing || failed.Progress != 0 {
		t.Errorf("failed = %+v", failed)
	}
	if failed.Error != "Conversion failed: boom" {
		t.Errorf("Error = %q", failed.Error)
	}
	if after := failed.Succeed("doc", "x"); after != failed {
		t.Errorf("Succeed after failure changed state: %+v", after)
	}

	if idle := IdleState().Advance(50, "x"); idle != IdleState() {
		t.Errorf("Advance from idle changed state: %+v", idle)
	}
	if restarted := StartConversion("again"); restarted.Phase != PhaseProcessing {
		t.Errorf("restart = %+v", restarted)
	}
}

func TestConversionRequest_DocumentPath(t *testing.T) {
	tests := []struct {
		target, name, file, want string
	}{
		{"/", "", "scan.pdf", "/scan"},
		{"", "", "scan.pdf", "/scan"},
		{"/Folder", "", "photo.v2.PNG", "/Folder/photo.v2"},
		{"/Folder/", "Invoice", "scan.pdf", "/Folder/Invoice"},
		{"/A/B", "  Notes  ", "x.pdf", "/A/B/Notes"},
		{"/", "", "noext", "/noext"},
	}
	for _, tt := range tests {
		req := ConversionRequest{TargetPath: tt.target, DocumentName: tt.name, File: ocr.File{Name: tt.file}}
		if got := req.DocumentPath(); got != tt.want {
			t.Errorf("DocumentPath(%q, %q, %q) = %q, want %q", tt.target, tt.name, tt.file, got, tt.want)
		}
	}
}

type stubProvider struct {
	result *ocr.Result
	err    error
	calls  int
}

func (p *stubProvider) Process(context.Context, ocr.File) (*ocr.Result, error) {
	p.calls++
	return p.result, p.err
}

type conversionFixture struct {
	service  *ConversionService
	settings *SettingsService
	docs     *fakeDocs
	provider *models.ProviderConfig
}

func newConversionFixture(t *testing.T, factory ProviderFactory) *conversionFixture {
	t.Helper()
	settings, _ := newSettings(t)
	provider, err := settings.AddProvider(context.Background(), ProviderInput{APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("AddProvider: %v", err)
	}
	docs := &fakeDocs{}
	assembler := NewDocumentAssembler(&fakeAssets{paths: []string{"assets/foo.png"}}, docs, discardLogger)
	return &conversionFixture{
		service:  NewConversionService(settings, assembler, factory, discardLogger),
		settings: settings,
		docs:     docs,
		provider: provider,
	}
}

func TestConvert_Success(t *testing.T) {
	stub := &stubProvider{result: twoPageResult()}
	fx := newConversionFixture(t, func(models.ProviderConfig) (ocr.Provider, error) { return stub, nil })

	var states []ConversionState
	final, err := fx.service.Convert(context.Background(), ConversionRequest{
		ProviderID: fx.provider.ID,
		NotebookID: "nb",
		TargetPath: "/Scans",
		File:       ocr.File{Name: "invoice.pdf", Data: []byte("%PDF-1.4")},
	}, func(s ConversionState) { states = append(states, s) })
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if final.Phase != PhaseSuccess || final.Progress != 100 || final.ResultDocID != "20261019120000-docdocd" {
		t.Errorf("final = %+v", final)
	}
	if fx.docs.created[0].path != "/Scans/invoice" {
		t.Errorf("document path = %q", fx.docs.created[0].path)
	}
	if !strings.HasPrefix(fx.docs.created[0].markdown, "![x](../assets/foo.png)") {
		t.Errorf("body = %q", fx.docs.created[0].markdown)
	}

	wantProgress := []int{0, 10, 25, 30, 80, 85, 100, 100}
	if len(states) != len(wantProgress) {
		t.Fatalf("observed %d states: %+v", len(states), states)
	}
	for i, s := range states {
		if s.Progress != wantProgress[i] {
			t.Errorf("state %d progress = %d, want %d", i, s.Progress, wantProgress[i])
		}
	}
	if states[len(states)-1].Phase != PhaseSuccess {
		t.Errorf("last observed state = %+v", states[len(states)-1])
	}

	state, err := fx.settings.LoadState(context.Background())
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	want := models.PluginState{LastSelectedAPIID: fx.provider.ID, LastNotebookID: "nb", LastPath: "/Scans"}
	if state != want {
		t.Errorf("saved state = %+v, want %+v", state, want)
	}
}

func TestConvert_ReportsPDFPageCount(t *testing.T) {
	tests := []struct {
		name string
		file ocr.File
		want string
	}{
		{"three pages", ocr.File{Name: "scan.pdf", Data: ocrtest.PDF(3)}, "Recognizing 3 pages..."},
		{"single page", ocr.File{Name: "scan.PDF", Data: ocrtest.PDF(1)}, "Recognizing 1 page..."},
		{"unreadable pdf", ocr.File{Name: "scan.pdf", Data: []byte("%PDF-1.4")}, MessageConverting},
		{"image", ocr.File{Name: "photo.png", Data: ocrtest.PDF(3)}, MessageConverting},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubProvider{result: twoPageResult()}
			fx := newConversionFixture(t, func(models.ProviderConfig) (ocr.Provider, error) { return stub, nil })

			var states []ConversionState
			_, err := fx.service.Convert(context.Background(), ConversionRequest{
				ProviderID: fx.provider.ID,
				NotebookID: "nb",
				File:       tt.file,
			}, func(s ConversionState) { states = append(states, s) })
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if len(states) < 2 || states[1].Progress != 10 {
				t.Fatalf("observed states: %+v", states)
			}
			if states[1].StatusMessage != tt.want {
				t.Errorf("message before OCR = %q, want %q", states[1].StatusMessage, tt.want)
			}
		})
	}
}

func TestConvert_OCRUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"message":"Unauthorized"}`)
	}))
	t.Cleanup(srv.Close)

	fx := newConversionFixture(t, func(cfg models.ProviderConfig) (ocr.Provider, error) {
		cfg.URL = srv.URL
		return ocr.NewProvider(cfg, ocr.WithHTTPClient(srv.Client()))
	})

	var last ConversionState
	final, err := fx.service.Convert(context.Background(), ConversionRequest{
		ProviderID: fx.provider.ID,
		NotebookID: "nb",
		File:       ocr.File{Name: "scan.png", Data: []byte{0x89, 'P', 'N', 'G'}},
	}, func(s ConversionState) { last = s })

	var apiErr *ocr.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected a 401 *ocr.APIError, got %v", err)
	}
	if final.Phase != PhaseFailed || last != final {
		t.Errorf("final = %+v, last observed = %+v", final, last)
	}
	if !strings.HasPrefix(final.Error, "Conversion failed: ") || !strings.Contains(final.Error, "401") {
		t.Errorf("Error = %q", final.Error)
	}
	if len(fx.docs.created) != 0 {
		t.Errorf("no document should be created, got %+v", fx.docs.created)
	}
}

func TestConvert_UnsupportedProviderKind(t *testing.T) {
	fx := newConversionFixture(t, nil)
	custom, err := fx.settings.AddProvider(context.Background(), ProviderInput{
		Kind:   models.ProviderCustom,
		URL:    "https://ocr.example.com",
		APIKey: "k",
	})
	if err != nil {
		t.Fatal(err)
	}

	final, err := fx.service.Convert(context.Background(), ConversionRequest{
		ProviderID: custom.ID,
		NotebookID: "nb",
		File:       ocr.File{Name: "scan.pdf", Data: []byte("x")},
	}, nil)

	var cfgErr *ocr.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ocr.ConfigurationError, got %T (%v)", err, err)
	}
	if final.Phase != PhaseFailed || !strings.Contains(final.Error, "Unsupported API type") {
		t.Errorf("final = %+v", final)
	}
}

func TestConvert_DocumentCreationFails(t *testing.T) {
	stub := &stubProvider{result: &ocr.Result{Pages: []ocr.Page{{Markdown: "text"}}}}
	fx := newConversionFixture(t, func(models.ProviderConfig) (ocr.Provider, error) { return stub, nil })
	fx.docs.err = errors.New("kernel offline")

	final, err := fx.service.Convert(context.Background(), ConversionRequest{
		ProviderID: fx.provider.ID,
		NotebookID: "nb",
		File:       ocr.File{Name: "a.jpg", Data: []byte("x")},
	}, nil)

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected *PersistenceError, got %T (%v)", err, err)
	}
	if final.Phase != PhaseFailed || !strings.Contains(final.Error, "kernel offline") {
		t.Errorf("final = %+v", final)
	}
}

func TestConvert_ValidationNeverStartsProcessing(t *testing.T) {
	stub := &stubProvider{result: &ocr.Result{}}
	fx := newConversionFixture(t, func(models.ProviderConfig) (ocr.Provider, error) { return stub, nil })

	valid := ConversionRequest{
		ProviderID: fx.provider.ID,
		NotebookID: "nb",
		File:       ocr.File{Name: "a.pdf", Data: []byte("x")},
	}
	tests := []struct {
		name   string
		mutate func(*ConversionRequest)
	}{
		{name: "no provider", mutate: func(r *ConversionRequest) { r.ProviderID = "" }},
		{name: "unknown provider", mutate: func(r *ConversionRequest) { r.ProviderID = "api_nope" }},
		{name: "no notebook", mutate: func(r *ConversionRequest) { r.NotebookID = "" }},
		{name: "no file", mutate: func(r *ConversionRequest) { r.File = ocr.File{} }},
		{name: "empty file", mutate: func(r *ConversionRequest) { r.File.Data = nil }},
		{name: "unsupported type", mutate: func(r *ConversionRequest) { r.File.Name = "notes.docx" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			observed := 0
			final, err := fx.service.Convert(context.Background(), req, func(ConversionState) { observed++ })
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
			}
			if final.Phase != PhaseIdle || observed != 0 {
				t.Errorf("validation failure entered processing: %+v (observed %d)", final, observed)
			}
		})
	}
	if stub.calls != 0 {
		t.Errorf("provider called %d times", stub.calls)
	}
}

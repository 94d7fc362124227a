package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"siyuan-ocr/internal/ocr"
	"siyuan-ocr/internal/storage"
)

// PageSeparator joins the pages of one OCR result into a single body.
const PageSeparator = "\n\n---\n\n"

// ProgressFunc receives progress checkpoints (0-100) and a status message.
type ProgressFunc func(progress int, message string)

// AssetMap maps an image id to the path used in the document body.
type AssetMap map[string]string

var (
	dataURIPrefix = regexp.MustCompile(`^data:image/[a-zA-Z]+;base64,`)
	whitespace    = regexp.MustCompile(`\s`)
	schemePrefix  = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)
)

// DocumentAssembler turns a normalized OCR result into a note: images are
// uploaded as assets, references rewritten, pages joined and the document
// created.
type DocumentAssembler struct {
	assets AssetStore
	docs   DocumentStore
	logger *slog.Logger
	now    func() time.Time
}

func NewDocumentAssembler(assets AssetStore, docs DocumentStore, logger *slog.Logger) *DocumentAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentAssembler{
		assets: assets,
		docs:   docs,
		logger: logger,
		now:    time.Now,
	}
}

// ProcessAndCreateDocument uploads every image with a payload, rewrites the
// page markdown to point at the stored assets and creates the document at
// docPath. A failed image upload is logged and skipped; only document
// creation failures are returned.
func (a *DocumentAssembler) ProcessAndCreateDocument(
	ctx context.Context,
	result *ocr.Result,
	notebookID, docPath string,
	progress ProgressFunc,
) (string, error) {
	if progress == nil {
		progress = func(int, string) {}
	}
	if result == nil {
		result = &ocr.Result{}
	}

	assets := a.uploadImages(ctx, result, docPath, progress)

	progress(85, "Creating document...")
	markdown := ConvertToMarkdown(result, assets)

	docID, err := a.docs.CreateDocWithMarkdown(ctx, notebookID, docPath, markdown)
	if err != nil {
		return "", &PersistenceError{Path: docPath, Err: err}
	}

	a.logger.Info("document created",
		"doc_id", docID,
		"notebook_id", notebookID,
		"path", docPath,
		"pages", len(result.Pages),
		"assets", len(assets),
	)
	progress(100, "Done!")
	return docID, nil
}

func (a *DocumentAssembler) uploadImages(ctx context.Context, result *ocr.Result, docPath string, progress ProgressFunc) AssetMap {
	assets := make(AssetMap)
	total := result.ImageCount()
	if total == 0 {
		return assets
	}

	progress(30, fmt.Sprintf("Uploading images (0/%d)...", total))

	done := 0
	for _, page := range result.Pages {
		for _, image := range page.Images {
			if image.Base64 == "" {
				continue
			}
			stored, err := a.uploadImage(ctx, image)
			if err != nil {
				a.logger.Warn("image upload failed, keeping raw reference",
					"page", page.PageNumber,
					"image_id", image.ID,
					"error", err,
				)
				continue
			}

			adjusted := RelativeAssetPath(docPath, stored)
			a.logger.Debug("uploaded asset", "image_id", image.ID, "stored", stored, "adjusted", adjusted)
			assets[image.ID] = adjusted

			done++
			pct := 30 + int(math.Round(float64(done)/float64(total)*50))
			progress(pct, fmt.Sprintf("Uploading images (%d/%d)...", done, total))
		}
	}
	return assets
}

func (a *DocumentAssembler) uploadImage(ctx context.Context, image ocr.Image) (string, error) {
	data, err := DecodeImagePayload(image.Base64)
	if err != nil {
		return "", &UploadError{ImageID: image.ID, Err: err}
	}
	stored, err := a.assets.UploadAsset(ctx, data, GenerateAssetName(a.now()))
	if err != nil {
		return "", &UploadError{ImageID: image.ID, Err: err}
	}
	return stored, nil
}

// DecodeImagePayload strips an optional data:image/*;base64, prefix and any
// whitespace before decoding.
func DecodeImagePayload(payload string) ([]byte, error) {
	clean := dataURIPrefix.ReplaceAllString(payload, "")
	clean = whitespace.ReplaceAllString(clean, "")
	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("decode base64 payload: %w", err)
	}
	return data, nil
}

// GenerateAssetName returns ocr_<YYYYMMDDhhmmss>-<7 random chars>.png. The
// extension is always .png whatever the source format.
func GenerateAssetName(t time.Time) string {
	return fmt.Sprintf("ocr_%s-%s.png", t.Format("20060102150405"), storage.RandomSuffix(7))
}

// RelativeAssetPath prefixes assetPath with one "../" per folder the
// document sits in, so /Folder/Sub/Doc gets "../../". Absolute URLs are
// returned as is.
func RelativeAssetPath(docPath, assetPath string) string {
	if schemePrefix.MatchString(assetPath) {
		return assetPath
	}

	var segments []string
	for _, seg := range strings.Split(strings.TrimPrefix(docPath, "/"), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	depth := len(segments) - 1
	if depth <= 0 {
		return assetPath
	}
	return strings.Repeat("../", depth) + assetPath
}

// RewriteImageReferences replaces every link target "](id)" in markdown with
// "](path)". id is matched literally.
func RewriteImageReferences(markdown, id, path string) string {
	pattern := regexp.MustCompile(`(\]\s*\()` + regexp.QuoteMeta(id) + `(\s*\))`)
	return pattern.ReplaceAllString(markdown, "${1}"+escapeReplacement(path)+"${2}")
}

// ConvertToMarkdown rewrites each page's image references found in assets
// and joins the pages in order.
func ConvertToMarkdown(result *ocr.Result, assets AssetMap) string {
	if result == nil {
		return ""
	}
	sections := make([]string, 0, len(result.Pages))
	for _, page := range result.Pages {
		markdown := page.Markdown
		for _, image := range page.Images {
			if path, ok := assets[image.ID]; ok {
				markdown = RewriteImageReferences(markdown, image.ID, path)
			}
		}
		sections = append(sections, markdown)
	}
	return strings.Join(sections, PageSeparator)
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}

package ocr

import (
	"encoding/base64"
	"strings"
)

const genericMimeType = "application/octet-stream"

var supportedExtensions = []string{"pdf", "png", "jpg", "jpeg", "tiff", "tif", "bmp", "webp"}

var mimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"tiff": "image/tiff",
	"tif":  "image/tiff",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// SupportedExtensions lists the extensions the dock accepts, without dots.
func SupportedExtensions() []string {
	out := make([]string, len(supportedExtensions))
	copy(out, supportedExtensions)
	return out
}

// IsFileSupported reports whether name carries a supported extension.
func IsFileSupported(name string) bool {
	_, ok := mimeTypes[extension(name)]
	return ok
}

// MimeType classifies name by extension. Unknown extensions are not rejected,
// they fall back to a generic binary type.
func MimeType(name string) string {
	if mime, ok := mimeTypes[extension(name)]; ok {
		return mime
	}
	return genericMimeType
}

// DataURI embeds data as a base64 data URI typed by name's extension.
func DataURI(name string, data []byte) string {
	return "data:" + MimeType(name) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// extension is the lowercased text after the last dot. A name without a dot
// is its own extension, matching how the dock splits file names.
func extension(name string) string {
	name = strings.ToLower(name)
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

package constants

import "strings"

// AllowedExtensions holds the image extensions accepted for roll captures.
var AllowedExtensions = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// MaxCaptureBytes caps a single uploaded label photo.
const MaxCaptureBytes = 15 << 20

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// ContentTypeFor returns the MIME type for an allowed extension, or "".
func ContentTypeFor(ext string) string {
	return AllowedExtensions[NormalizeExt(ext)]
}

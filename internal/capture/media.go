package capture

import (
	"encoding/base64"
	"net/http"
	"strings"
)

// MaxFileSize is the largest accepted capture payload.
const MaxFileSize = 10 << 20

const (
	MediaJPEG = "image/jpeg"
	MediaPNG  = "image/png"
	MediaWEBP = "image/webp"
	MediaPDF  = "application/pdf"
)

var allowedMediaTypes = map[string]bool{
	MediaJPEG: true,
	MediaPNG:  true,
	MediaWEBP: true,
	MediaPDF:  true,
}

// Allowed reports whether mediaType is on the capture allow-list. Parameters
// such as "; charset=" are ignored.
func Allowed(mediaType string) bool {
	return allowedMediaTypes[baseType(mediaType)]
}

// Previewable reports whether a payload of mediaType gets an image preview.
func Previewable(mediaType string) bool {
	return baseType(mediaType) != MediaPDF
}

// DataURL encodes data as a data: URL for display.
func DataURL(mediaType string, data []byte) string {
	return "data:" + baseType(mediaType) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// SniffMediaType detects an allowed media type from content, returning ""
// when the content is not one of them. The stdlib sniffer has no WebP
// signature, so RIFF/WEBP is checked by hand.
func SniffMediaType(data []byte) string {
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP" {
		return MediaWEBP
	}
	mt := baseType(http.DetectContentType(data))
	if allowedMediaTypes[mt] {
		return mt
	}
	return ""
}

// MediaTypeFromName declares a media type from a file extension, the way a
// browser file picker does.
func MediaTypeFromName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return MediaJPEG
	case strings.HasSuffix(lower, ".png"):
		return MediaPNG
	case strings.HasSuffix(lower, ".webp"):
		return MediaWEBP
	case strings.HasSuffix(lower, ".pdf"):
		return MediaPDF
	case strings.HasSuffix(lower, ".gif"):
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

func baseType(mediaType string) string {
	mt, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

package analysis

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/raine/listing-analyzer/internal/faults"
)

const (
	// MaxImages is the most photos accepted in one request.
	MaxImages = 10
	// MaxImageSize is the largest accepted photo in bytes (10MB).
	MaxImageSize = 10 * 1024 * 1024
)

// Request is an AnalyzeProduct call.
type Request struct {
	Title                   string
	Category                string
	Images                  [][]byte
	UserProvidedDescription string
}

// Validate reports caller errors. Zero images is valid: the response is
// then built from defaults.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return invalid("title is required")
	}
	if strings.TrimSpace(r.Category) == "" {
		return invalid("category is required")
	}
	if len(r.Images) > MaxImages {
		return invalid(fmt.Sprintf("at most %d images are allowed, got %d", MaxImages, len(r.Images)))
	}
	for i, img := range r.Images {
		if len(img) == 0 {
			return invalid(fmt.Sprintf("image %d is empty", i))
		}
		if len(img) > MaxImageSize {
			return invalid(fmt.Sprintf("image %d exceeds %d bytes", i, MaxImageSize))
		}
		if ct := http.DetectContentType(img); !strings.HasPrefix(ct, "image/") {
			return invalid(fmt.Sprintf("image %d is not an image (detected %s)", i, ct))
		}
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", faults.ErrInvalidRequest, msg)
}

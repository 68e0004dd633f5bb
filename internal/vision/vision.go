// Package vision is the direct multimodal analysis path: one model call that
// derives description, price and provenance data straight from the photos.
package vision

import (
	"context"
	"errors"
	"fmt"
)

// Fallback values used when the direct analysis cannot produce a result.
const (
	FallbackPrice    = 1000
	FallbackWeightKg = 0.5
	FallbackCountry  = "Unknown"
	FallbackYear     = 2020
)

// ErrNoImages is returned by analyzers when the request carries no photos.
var ErrNoImages = errors.New("no images to analyze")

// Input is the listing data sent to the analyzer.
type Input struct {
	Title    string
	Category string
	Images   [][]byte
}

// Result is the structured outcome of a direct analysis.
type Result struct {
	Description string `json:"description"`
	// SuggestedPrice is nil when the model gave no usable price.
	SuggestedPrice             *int     `json:"suggested_price,omitempty"`
	EstimatedWeightKg          float64  `json:"estimated_weight_kg"`
	ManufacturerCountry        string   `json:"manufacturer_country"`
	EstimatedManufacturingYear int      `json:"estimated_manufacturing_year"`
	DetectedObjects            []string `json:"detected_objects"`
	IsInappropriate            bool     `json:"is_inappropriate"`
	InappropriateReason        string   `json:"inappropriate_reason"`
}

// Analyzer produces a Result for a listing.
type Analyzer interface {
	Analyze(ctx context.Context, in Input) (Result, error)
}

// Fallback returns the documented default result for in.
func Fallback(in Input) Result {
	price := FallbackPrice
	return Result{
		Description:                fmt.Sprintf("Quality %s in %s category. Great condition.", in.Title, in.Category),
		SuggestedPrice:             &price,
		EstimatedWeightKg:          FallbackWeightKg,
		ManufacturerCountry:        FallbackCountry,
		EstimatedManufacturingYear: FallbackYear,
		DetectedObjects:            []string{in.Category},
	}
}

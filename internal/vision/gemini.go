package vision

import (
	"context"
	"math"
	"strings"

	"github.com/raine/listing-analyzer/internal/extract"
	"github.com/raine/listing-analyzer/internal/llm"
	"google.golang.org/genai"
)

// PurposeDirectAnalysis labels direct analysis calls in logs and metrics.
const PurposeDirectAnalysis = "direct_analysis"

// MaxImages is how many photos are sent with one analysis.
const MaxImages = 3

const analysisPrompt = `
	You are an expert product analyst for a sustainable second-hand marketplace.
	Analyze these images of a "%s" in the "%s" category.

	Return a JSON object with:
	- description: a compelling, search-friendly description (100-150 words) highlighting key features and condition
	- suggested_price_jpy: estimated fair market price in Japanese Yen
	- estimated_weight_kg: estimated weight in kilograms
	- manufacturer_country: most likely country of manufacture, in English (e.g. "Japan", "China", "USA")
	- estimated_manufacturing_year: approximate year of manufacture
	- detected_objects: the objects visible in the photos
	- is_inappropriate: true if the item is illegal, counterfeit, hazardous or adult content
	- inappropriate_reason: the reason if inappropriate, otherwise an empty string

	Focus on accuracy. Consider the item's condition, brand and current market trends.
`

var requiredKeys = []string{
	"description",
	"estimated_weight_kg",
	"manufacturer_country",
	"estimated_manufacturing_year",
}

var replySchema = extract.MustSchema("direct_analysis.json", `{
	"type": "object",
	"required": ["description", "estimated_weight_kg", "manufacturer_country", "estimated_manufacturing_year"],
	"properties": {
		"description": {"type": "string", "minLength": 1},
		"suggested_price_jpy": {"type": ["number", "null"]},
		"estimated_weight_kg": {"type": "number", "minimum": 0, "maximum": 100000},
		"manufacturer_country": {"type": "string", "minLength": 1},
		"estimated_manufacturing_year": {"type": "number", "minimum": 1800, "maximum": 2100},
		"detected_objects": {"type": "array", "items": {"type": "string"}},
		"is_inappropriate": {"type": "boolean"},
		"inappropriate_reason": {"type": "string"}
	}
}`)

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description":                  {Type: genai.TypeString},
		"suggested_price_jpy":          {Type: genai.TypeInteger},
		"estimated_weight_kg":          {Type: genai.TypeNumber},
		"manufacturer_country":         {Type: genai.TypeString},
		"estimated_manufacturing_year": {Type: genai.TypeInteger},
		"detected_objects":             {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"is_inappropriate":             {Type: genai.TypeBoolean},
		"inappropriate_reason":         {Type: genai.TypeString},
	},
	Required: requiredKeys,
	PropertyOrdering: []string{
		"description", "suggested_price_jpy", "estimated_weight_kg", "manufacturer_country",
		"estimated_manufacturing_year", "detected_objects", "is_inappropriate", "inappropriate_reason",
	},
}

// reply mirrors the model's JSON. Numbers are decoded as floats because
// models sometimes answer 2019.0 for an integer field.
type reply struct {
	Description         string   `json:"description"`
	SuggestedPriceJPY   *float64 `json:"suggested_price_jpy"`
	EstimatedWeightKg   float64  `json:"estimated_weight_kg"`
	ManufacturerCountry string   `json:"manufacturer_country"`
	ManufacturingYear   float64  `json:"estimated_manufacturing_year"`
	DetectedObjects     []string `json:"detected_objects"`
	IsInappropriate     bool     `json:"is_inappropriate"`
	InappropriateReason string   `json:"inappropriate_reason"`
}

func (r reply) result() Result {
	res := Result{
		Description:                strings.TrimSpace(r.Description),
		EstimatedWeightKg:          r.EstimatedWeightKg,
		ManufacturerCountry:        strings.TrimSpace(r.ManufacturerCountry),
		EstimatedManufacturingYear: int(math.Round(r.ManufacturingYear)),
		DetectedObjects:            uniqueObjects(r.DetectedObjects),
		IsInappropriate:            r.IsInappropriate,
		InappropriateReason:        strings.TrimSpace(r.InappropriateReason),
	}
	if r.SuggestedPriceJPY != nil {
		if price := int(math.Round(*r.SuggestedPriceJPY)); price > 0 {
			res.SuggestedPrice = &price
		}
	}
	return res
}

// uniqueObjects drops blank and repeated names, keeping first-seen order.
func uniqueObjects(objects []string) []string {
	seen := make(map[string]struct{}, len(objects))
	out := make([]string, 0, len(objects))
	for _, o := range objects {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, dup := seen[o]; dup {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}

// GeminiAnalyzer implements Analyzer with a single structured model call.
type GeminiAnalyzer struct {
	gateway llm.Gateway
}

func NewGeminiAnalyzer(gateway llm.Gateway) *GeminiAnalyzer {
	return &GeminiAnalyzer{gateway: gateway}
}

// Analyze implements Analyzer. Errors match faults.ErrInferenceUnavailable or
// faults.ErrExtractionFailed, or are ErrNoImages.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, in Input) (Result, error) {
	if len(in.Images) == 0 {
		return Result{}, ErrNoImages
	}
	images := in.Images
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	text, err := a.gateway.Generate(ctx, llm.Request{
		Purpose:        PurposeDirectAnalysis,
		Prompt:         llm.Prompt(analysisPrompt, in.Title, in.Category),
		Images:         images,
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return Result{}, err
	}

	r, err := extract.Decode[reply](text, extract.Require(requiredKeys...), extract.WithSchema(replySchema))
	if err != nil {
		return Result{}, err
	}
	return r.result(), nil
}

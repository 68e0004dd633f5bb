package workflow

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/raine/listing-analyzer/internal/extract"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
)

// Purpose labels for inference calls made by the stages.
const (
	PurposeFeatureExtraction     = "feature_extraction"
	PurposeDescriptionGeneration = "description_generation"
	PurposePriceEstimation       = "price_estimation"
	PurposeSafetyCheck           = "safety_check"
)

const (
	noImageAnalysis        = "No image analysis is available."
	defaultUnsafeReason    = "flagged by safety check"
	maxSafetyVerdictQuoted = 120
)

const featureExtractionPrompt = `
	Based on the product images and title "%s", identify:
	1. Key visual features
	2. Condition indicators
	3. Brand or manufacturer if visible
	4. Material composition

	Product category: %s

	Provide a structured analysis.
`

const descriptionPrompt = `
	Create an engaging product description for a second-hand marketplace listing.

	Product: %s
	Category: %s
	Image analysis: %s

	Write a 100-150 word description that:
	- Highlights key features and benefits
	- Mentions condition and quality
	- Appeals to eco-conscious buyers
	- Is search-friendly

	Return only the description text.
`

const pricePrompt = `
	Estimate a fair resale price in Japanese Yen for:

	Product: %s
	Category: %s
	Description: %s

	Consider current market trends, condition and age, brand value, and supply and demand.

	Respond with ONLY a numeric value in Yen.
`

const safetyPrompt = `
	Review this product listing for prohibited content:

	Title: %s
	Category: %s
	Description: %s

	Check for illegal items (weapons, drugs), counterfeit goods, hazardous materials and adult content.

	Respond with exactly one line: SAFE, or UNSAFE: <reason>
`

// Stages holds the four stage functions. Each takes exactly the state fields
// it depends on and returns the field it owns.
type Stages struct {
	gateway llm.Gateway
}

func NewStages(gateway llm.Gateway) Stages {
	return Stages{gateway: gateway}
}

// ExtractFeatures describes what is visible in the listing photos.
func (s Stages) ExtractFeatures(ctx context.Context, title, category string, images [][]byte) (string, error) {
	text, err := s.gateway.Generate(ctx, llm.Request{
		Purpose: PurposeFeatureExtraction,
		Prompt:  llm.Prompt(featureExtractionPrompt, title, category),
		Images:  images,
	})
	if err != nil {
		return "", err
	}
	return extract.Text(text)
}

// GenerateDescription writes the listing description.
func (s Stages) GenerateDescription(ctx context.Context, title, category string, imageAnalysis Optional[string]) (string, error) {
	text, err := s.gateway.Generate(ctx, llm.Request{
		Purpose: PurposeDescriptionGeneration,
		Prompt:  llm.Prompt(descriptionPrompt, title, category, imageAnalysis.Or(noImageAnalysis)),
	})
	if err != nil {
		return "", err
	}
	return extract.Text(text)
}

// EstimatePrice returns a positive price in yen.
func (s Stages) EstimatePrice(ctx context.Context, title, category string, description Optional[string]) (int, error) {
	text, err := s.gateway.Generate(ctx, llm.Request{
		Purpose: PurposePriceEstimation,
		Prompt:  llm.Prompt(pricePrompt, title, category, description.Or("")),
	})
	if err != nil {
		return 0, err
	}
	return extract.Integer(text)
}

// CheckSafety classifies the listing as SAFE or UNSAFE.
func (s Stages) CheckSafety(ctx context.Context, title, category string, description Optional[string]) (SafetyVerdict, error) {
	text, err := s.gateway.Generate(ctx, llm.Request{
		Purpose: PurposeSafetyCheck,
		Prompt:  llm.Prompt(safetyPrompt, title, category, description.Or("")),
	})
	if err != nil {
		return SafetyVerdict{}, err
	}
	return parseSafetyVerdict(text)
}

// parseSafetyVerdict reads the verdict from the leading word of the reply.
// "SAFE" must not be matched as a substring of "UNSAFE".
func parseSafetyVerdict(text string) (SafetyVerdict, error) {
	text = strings.TrimLeft(extract.Strip(text), "*_`\"' ")
	end := strings.IndexFunc(text, func(r rune) bool { return !unicode.IsLetter(r) })
	if end == -1 {
		end = len(text)
	}
	word, rest := strings.ToUpper(text[:end]), text[end:]

	switch word {
	case "SAFE":
		return SafetyVerdict{}, nil
	case "UNSAFE":
		reason := strings.TrimSpace(strings.TrimLeft(rest, "*_:-–— "))
		if reason == "" {
			reason = defaultUnsafeReason
		}
		return SafetyVerdict{Inappropriate: true, Reason: reason}, nil
	default:
		quoted := text
		if len(quoted) > maxSafetyVerdictQuoted {
			quoted = quoted[:maxSafetyVerdictQuoted] + "..."
		}
		return SafetyVerdict{}, fmt.Errorf("%w: unrecognised safety verdict %q", faults.ErrExtractionFailed, quoted)
	}
}

package analysis

import (
	"fmt"
	"strings"

	"github.com/raine/listing-analyzer/internal/co2"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/vision"
	"github.com/raine/listing-analyzer/internal/workflow"
)

// DefaultPrice is used when neither inference path produced a price.
const DefaultPrice = 1000

// Response is the final AnalyzeProduct result.
type Response struct {
	GeneratedDescription       string   `json:"generated_description"`
	SuggestedPrice             int      `json:"suggested_price"`
	EstimatedWeightKg          float64  `json:"estimated_weight_kg"`
	ManufacturerCountry        string   `json:"manufacturer_country"`
	EstimatedManufacturingYear int      `json:"estimated_manufacturing_year"`
	CO2ImpactKg                float64  `json:"co2_impact_kg"`
	IsInappropriate            bool     `json:"is_inappropriate"`
	InappropriateReason        string   `json:"inappropriate_reason"`
	DetectedObjects            []string `json:"detected_objects"`
}

// Combine merges the two inference paths. Precedence:
//
//	description: user > workflow > direct analysis
//	price:       workflow > direct analysis > DefaultPrice
//	provenance:  direct analysis only
//	safety:      workflow only
//	co2:         request category + direct analysis provenance
func Combine(req Request, flow workflow.Output, direct vision.Result) (Response, error) {
	impact, err := co2.Calculate(co2.Input{
		Category:            req.Category,
		WeightKg:            direct.EstimatedWeightKg,
		ManufacturerCountry: direct.ManufacturerCountry,
		ManufacturingYear:   direct.EstimatedManufacturingYear,
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: co2 calculation: %v", faults.ErrInternalFault, err)
	}

	objects := direct.DetectedObjects
	if objects == nil {
		objects = []string{}
	}

	return Response{
		GeneratedDescription:       pickDescription(req.UserProvidedDescription, flow.GeneratedDescription, direct.Description),
		SuggestedPrice:             pickPrice(flow.SuggestedPrice, direct.SuggestedPrice),
		EstimatedWeightKg:          direct.EstimatedWeightKg,
		ManufacturerCountry:        direct.ManufacturerCountry,
		EstimatedManufacturingYear: direct.EstimatedManufacturingYear,
		CO2ImpactKg:                impact.SavedKg,
		IsInappropriate:            flow.IsInappropriate,
		InappropriateReason:        flow.InappropriateReason,
		DetectedObjects:            objects,
	}, nil
}

func pickDescription(user, generated, direct string) string {
	if strings.TrimSpace(user) != "" {
		return user
	}
	if strings.TrimSpace(generated) != "" {
		return generated
	}
	return direct
}

func pickPrice(flow workflow.Optional[int], direct *int) int {
	if p, ok := flow.Get(); ok && p > 0 {
		return p
	}
	if direct != nil && *direct > 0 {
		return *direct
	}
	return DefaultPrice
}

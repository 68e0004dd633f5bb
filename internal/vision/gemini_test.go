package vision

import (
	"context"
	"fmt"
	"testing"

	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Generate(ctx context.Context, req llm.Request) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

var headphones = Input{
	Title:    "Sony WH-1000XM4",
	Category: "electronics",
	Images:   [][]byte{{1}, {2}, {3}, {4}, {5}},
}

func TestGeminiAnalyzer_Analyze(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposeDirectAnalysis && len(req.Images) == MaxImages && req.ResponseSchema != nil
	})).Return("```json\n"+`{
		"description": "Noise cancelling headphones in good condition.",
		"suggested_price_jpy": 18000.4,
		"estimated_weight_kg": 0.25,
		"manufacturer_country": "China",
		"estimated_manufacturing_year": 2020.0,
		"detected_objects": ["headphones", "case"],
		"is_inappropriate": false,
		"inappropriate_reason": ""
	}`+"\n```", nil)

	got, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), headphones)
	require.NoError(t, err)

	require.NotNil(t, got.SuggestedPrice)
	assert.Equal(t, 18000, *got.SuggestedPrice)
	assert.Equal(t, "Noise cancelling headphones in good condition.", got.Description)
	assert.Equal(t, 0.25, got.EstimatedWeightKg)
	assert.Equal(t, "China", got.ManufacturerCountry)
	assert.Equal(t, 2020, got.EstimatedManufacturingYear)
	assert.Equal(t, []string{"headphones", "case"}, got.DetectedObjects)
	gw.AssertExpectations(t)
}

func TestGeminiAnalyzer_OptionalPrice(t *testing.T) {
	tests := []struct {
		name  string
		price string
	}{
		{name: "missing", price: ""},
		{name: "null", price: `"suggested_price_jpy": null,`},
		{name: "zero", price: `"suggested_price_jpy": 0,`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(mockGateway)
			gw.On("Generate", mock.Anything, mock.Anything).Return(fmt.Sprintf(`{
				%s
				"description": "Lamp",
				"estimated_weight_kg": 1.5,
				"manufacturer_country": "Japan",
				"estimated_manufacturing_year": 1998
			}`, tt.price), nil)

			got, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), headphones)
			require.NoError(t, err)
			assert.Nil(t, got.SuggestedPrice)
			assert.Equal(t, []string{}, got.DetectedObjects)
		})
	}
}

func TestGeminiAnalyzer_MalformedReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{name: "prose", reply: "I cannot identify this item."},
		{name: "missing weight", reply: `{"description": "x", "manufacturer_country": "Japan", "estimated_manufacturing_year": 2010}`},
		{name: "negative weight", reply: `{"description": "x", "estimated_weight_kg": -2, "manufacturer_country": "Japan", "estimated_manufacturing_year": 2010}`},
		{name: "year out of range", reply: `{"description": "x", "estimated_weight_kg": 2, "manufacturer_country": "Japan", "estimated_manufacturing_year": 20}`},
		{name: "absurd weight", reply: `{"description": "x", "estimated_weight_kg": 1e308, "manufacturer_country": "Japan", "estimated_manufacturing_year": 2010}`},
		{name: "weight as text", reply: `{"description": "x", "estimated_weight_kg": "heavy", "manufacturer_country": "Japan", "estimated_manufacturing_year": 2010}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := new(mockGateway)
			gw.On("Generate", mock.Anything, mock.Anything).Return(tt.reply, nil)

			got, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), headphones)
			assert.ErrorIs(t, err, faults.ErrExtractionFailed)
			assert.Equal(t, Result{}, got)
		})
	}
}

func TestGeminiAnalyzer_DetectedObjectsAreUnique(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.Anything).Return(`{
		"description": "Desk set",
		"estimated_weight_kg": 3,
		"manufacturer_country": "Japan",
		"estimated_manufacturing_year": 2015,
		"detected_objects": ["lamp", "desk", " lamp ", "", "chair", "desk"]
	}`, nil)

	got, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), headphones)
	require.NoError(t, err)
	assert.Equal(t, []string{"lamp", "desk", "chair"}, got.DetectedObjects)
}

func TestGeminiAnalyzer_GatewayError(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.Anything).Return("", fmt.Errorf("%w: timeout", faults.ErrInferenceUnavailable))

	_, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), headphones)
	assert.ErrorIs(t, err, faults.ErrInferenceUnavailable)
}

func TestGeminiAnalyzer_NoImages(t *testing.T) {
	gw := new(mockGateway)

	_, err := NewGeminiAnalyzer(gw).Analyze(context.Background(), Input{Title: "Chair", Category: "furniture"})
	assert.ErrorIs(t, err, ErrNoImages)
	gw.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestFallback(t *testing.T) {
	got := Fallback(Input{Title: "Chair", Category: "furniture"})

	assert.Equal(t, "Quality Chair in furniture category. Great condition.", got.Description)
	require.NotNil(t, got.SuggestedPrice)
	assert.Equal(t, 1000, *got.SuggestedPrice)
	assert.Equal(t, 0.5, got.EstimatedWeightKg)
	assert.Equal(t, "Unknown", got.ManufacturerCountry)
	assert.Equal(t, 2020, got.EstimatedManufacturingYear)
	assert.Equal(t, []string{"furniture"}, got.DetectedObjects)
	assert.False(t, got.IsInappropriate)
}

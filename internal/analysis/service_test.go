package analysis

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/raine/listing-analyzer/internal/co2"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/raine/listing-analyzer/internal/translate"
	"github.com/raine/listing-analyzer/internal/vision"
	"github.com/raine/listing-analyzer/internal/workflow"
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

type flowFunc func(ctx context.Context, in workflow.Input) workflow.Output

func (f flowFunc) Run(ctx context.Context, in workflow.Input) workflow.Output { return f(ctx, in) }

type analyzerFunc func(ctx context.Context, in vision.Input) (vision.Result, error)

func (f analyzerFunc) Analyze(ctx context.Context, in vision.Input) (vision.Result, error) {
	return f(ctx, in)
}

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F'}

func newGatewayService(gw llm.Gateway) *Service {
	return NewService(workflow.NewOrchestrator(gw), vision.NewGeminiAnalyzer(gw), translate.NewTranslator(gw))
}

func TestAnalyzeProduct_ZeroImagesUsesDefaults(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.Anything).Return("", fmt.Errorf("%w: offline", faults.ErrInferenceUnavailable))

	got, err := newGatewayService(gw).AnalyzeProduct(context.Background(), Request{Title: "Desk", Category: "furniture"})
	require.NoError(t, err)

	want, err := co2.Calculate(co2.Input{Category: "furniture", WeightKg: 0.5, ManufacturerCountry: "Unknown", ManufacturingYear: 2020})
	require.NoError(t, err)
	assert.Equal(t, Response{
		GeneratedDescription:       "Quality Desk in furniture category. Great condition.",
		SuggestedPrice:             DefaultPrice,
		EstimatedWeightKg:          0.5,
		ManufacturerCountry:        "Unknown",
		EstimatedManufacturingYear: 2020,
		CO2ImpactKg:                want.SavedKg,
		DetectedObjects:            []string{"furniture"},
	}, got)
	// Four workflow stages; the direct analyzer never calls the model without images.
	gw.AssertNumberOfCalls(t, "Generate", 4)
}

func TestAnalyzeProduct_UserDescriptionWins(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == vision.PurposeDirectAnalysis
	})).Return(`{"description": "direct", "suggested_price_jpy": 3000, "estimated_weight_kg": 1,
		"manufacturer_country": "Japan", "estimated_manufacturing_year": 2018, "detected_objects": ["lamp"]}`, nil)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == workflow.PurposePriceEstimation
	})).Return("4500", nil)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == workflow.PurposeSafetyCheck
	})).Return("SAFE", nil)
	gw.On("Generate", mock.Anything, mock.Anything).Return("generated text", nil)

	got, err := newGatewayService(gw).AnalyzeProduct(context.Background(), Request{
		Title:                   "Lamp",
		Category:                "furniture",
		Images:                  [][]byte{jpeg},
		UserProvidedDescription: "Grandma's lamp, works fine.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Grandma's lamp, works fine.", got.GeneratedDescription)
	assert.Equal(t, 4500, got.SuggestedPrice)
	assert.Equal(t, "Japan", got.ManufacturerCountry)
	assert.Equal(t, 2018, got.EstimatedManufacturingYear)
	assert.Equal(t, []string{"lamp"}, got.DetectedObjects)
}

func TestAnalyzeProduct_AbsurdWeightFallsBack(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == vision.PurposeDirectAnalysis
	})).Return(`{"description": "direct", "estimated_weight_kg": 1e308,
		"manufacturer_country": "China", "estimated_manufacturing_year": 2020}`, nil)
	gw.On("Generate", mock.Anything, mock.Anything).Return("", fmt.Errorf("%w: offline", faults.ErrInferenceUnavailable))

	got, err := newGatewayService(gw).AnalyzeProduct(context.Background(), Request{
		Title:    "Anvil",
		Category: "sports",
		Images:   [][]byte{jpeg},
	})
	require.NoError(t, err)

	assert.Equal(t, vision.FallbackWeightKg, got.EstimatedWeightKg)
	assert.Equal(t, vision.FallbackCountry, got.ManufacturerCountry)
	assert.GreaterOrEqual(t, got.CO2ImpactKg, 0.0)
}

func TestAnalyzeProduct_Validation(t *testing.T) {
	tooMany := make([][]byte, MaxImages+1)
	for i := range tooMany {
		tooMany[i] = jpeg
	}
	tests := []struct {
		name string
		req  Request
	}{
		{name: "missing title", req: Request{Category: "toys"}},
		{name: "missing category", req: Request{Title: "Robot"}},
		{name: "too many images", req: Request{Title: "Robot", Category: "toys", Images: tooMany}},
		{name: "empty image", req: Request{Title: "Robot", Category: "toys", Images: [][]byte{{}}}},
		{name: "not an image", req: Request{Title: "Robot", Category: "toys", Images: [][]byte{[]byte("hello world")}}},
		{name: "image too large", req: Request{Title: "Robot", Category: "toys", Images: [][]byte{append(bytes.Clone(jpeg), make([]byte, MaxImageSize)...)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			svc := NewService(
				flowFunc(func(context.Context, workflow.Input) workflow.Output { called = true; return workflow.Output{} }),
				analyzerFunc(func(context.Context, vision.Input) (vision.Result, error) { called = true; return vision.Result{}, nil }),
				nil,
			)
			got, err := svc.AnalyzeProduct(context.Background(), tt.req)
			assert.ErrorIs(t, err, faults.ErrInvalidRequest)
			assert.Equal(t, Response{}, got)
			assert.False(t, called)
		})
	}
}

func TestAnalyzeProduct_WorkflowPanicIsInternalFault(t *testing.T) {
	svc := NewService(
		flowFunc(func(context.Context, workflow.Input) workflow.Output { panic("nil map") }),
		analyzerFunc(func(context.Context, vision.Input) (vision.Result, error) { return vision.Result{}, nil }),
		nil,
	)

	got, err := svc.AnalyzeProduct(context.Background(), Request{Title: "Robot", Category: "toys"})
	assert.ErrorIs(t, err, faults.ErrInternalFault)
	assert.Equal(t, Response{}, got)
}

func TestAnalyzeProduct_AnalyzerPanicFallsBack(t *testing.T) {
	svc := NewService(
		flowFunc(func(context.Context, workflow.Input) workflow.Output {
			return workflow.Output{GeneratedDescription: "generated", SuggestedPrice: workflow.Some(700)}
		}),
		analyzerFunc(func(context.Context, vision.Input) (vision.Result, error) { panic("index out of range") }),
		nil,
	)

	got, err := svc.AnalyzeProduct(context.Background(), Request{Title: "Robot", Category: "toys", Images: [][]byte{jpeg}})
	require.NoError(t, err)
	assert.Equal(t, "generated", got.GeneratedDescription)
	assert.Equal(t, 700, got.SuggestedPrice)
	assert.Equal(t, vision.FallbackCountry, got.ManufacturerCountry)
}

func TestAnalyzeProduct_IgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var flowErr, directErr error
	svc := NewService(
		flowFunc(func(ctx context.Context, in workflow.Input) workflow.Output {
			flowErr = ctx.Err()
			return workflow.Output{}
		}),
		analyzerFunc(func(ctx context.Context, in vision.Input) (vision.Result, error) {
			directErr = ctx.Err()
			return vision.Fallback(in), nil
		}),
		nil,
	)

	_, err := svc.AnalyzeProduct(ctx, Request{Title: "Robot", Category: "toys"})
	require.NoError(t, err)
	assert.NoError(t, flowErr)
	assert.NoError(t, directErr)
}

func TestCalculateCO2Impact(t *testing.T) {
	svc := NewService(nil, nil, nil)
	in := co2.Input{Category: "electronics", WeightKg: 2.0, ManufacturerCountry: "China", ManufacturingYear: 2020}

	first, err := svc.CalculateCO2Impact(context.Background(), in)
	require.NoError(t, err)
	second, err := svc.CalculateCO2Impact(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, co2.Result{BuyingNewKg: 100.84, BuyingUsedKg: 0.02, SavedKg: 100.82}, first.Result)
	assert.Equal(t, co2.EquivalentsFor(100.82), first.Equivalents)

	_, err = svc.CalculateCO2Impact(context.Background(), co2.Input{Category: "toys", WeightKg: -1})
	assert.ErrorIs(t, err, faults.ErrInvalidRequest)

	_, err = svc.CalculateCO2Impact(context.Background(), co2.Input{Category: "electronics", WeightKg: 1e308, ManufacturerCountry: "China", ManufacturingYear: 2020})
	assert.ErrorIs(t, err, faults.ErrInvalidRequest)
}

package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/raine/listing-analyzer/internal/metrics"
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

func forPurpose(purpose string) any {
	return mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == purpose
	})
}

func unavailable() error {
	return fmt.Errorf("%w: quota exceeded", faults.ErrInferenceUnavailable)
}

var testInput = Input{
	Title:    "Sony WH-1000XM4",
	Category: "electronics",
	Images:   [][]byte{{0xFF, 0xD8, 0xFF, 0xE0}},
}

func TestRun_AllStagesSucceed(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposeFeatureExtraction && len(req.Images) == 1
	})).Return("Black over-ear headphones, light wear", nil).Once()
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposeDescriptionGeneration &&
			strings.Contains(req.Prompt, "Black over-ear headphones, light wear")
	})).Return("Great noise cancelling headphones.", nil).Once()
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposePriceEstimation &&
			strings.Contains(req.Prompt, "Great noise cancelling headphones.")
	})).Return("¥12,000", nil).Once()
	gw.On("Generate", mock.Anything, forPurpose(PurposeSafetyCheck)).Return("SAFE", nil).Once()

	out := NewOrchestrator(gw).Run(context.Background(), testInput)

	assert.Equal(t, StageDone, out.Stage)
	assert.Equal(t, "Great noise cancelling headphones.", out.GeneratedDescription)
	price, ok := out.SuggestedPrice.Get()
	assert.True(t, ok)
	assert.Equal(t, 12000, price)
	assert.False(t, out.IsInappropriate)
	assert.Empty(t, out.InappropriateReason)
	assert.Empty(t, out.Failed())
	require.Len(t, out.Trace, 4)
	assert.Equal(t, []Stage{StageFeatureExtraction, StageDescriptionGeneration, StagePriceEstimation, StageSafetyCheck},
		[]Stage{out.Trace[0].Stage, out.Trace[1].Stage, out.Trace[2].Stage, out.Trace[3].Stage})
	gw.AssertExpectations(t)
}

func TestRun_EveryInferenceFails(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, mock.Anything).Return("", unavailable())

	out := NewOrchestrator(gw).Run(context.Background(), testInput)

	assert.Equal(t, StageDone, out.Stage)
	assert.Empty(t, out.GeneratedDescription)
	assert.False(t, out.SuggestedPrice.IsSet())
	assert.False(t, out.IsInappropriate)
	assert.Empty(t, out.InappropriateReason)
	require.Len(t, out.Trace, 4)
	for _, outcome := range out.Trace {
		assert.ErrorIs(t, outcome.Err, faults.ErrInferenceUnavailable, outcome.Stage.String())
	}
	// No stage is skipped because an earlier one failed.
	gw.AssertNumberOfCalls(t, "Generate", 4)
}

func TestRun_DescriptionFailureStillEstimatesPrice(t *testing.T) {
	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, forPurpose(PurposeFeatureExtraction)).Return("", unavailable())
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposeDescriptionGeneration && strings.Contains(req.Prompt, noImageAnalysis)
	})).Return("   ", nil)
	gw.On("Generate", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Purpose == PurposePriceEstimation && strings.Contains(req.Prompt, "Description: \n")
	})).Return("8500", nil)
	gw.On("Generate", mock.Anything, forPurpose(PurposeSafetyCheck)).Return("UNSAFE: counterfeit branding", nil)

	out := NewOrchestrator(gw).Run(context.Background(), testInput)

	assert.Equal(t, []Stage{StageFeatureExtraction, StageDescriptionGeneration}, out.Failed())
	assert.ErrorIs(t, out.Trace[1].Err, faults.ErrExtractionFailed)
	assert.Empty(t, out.GeneratedDescription)
	assert.Equal(t, 8500, out.SuggestedPrice.Or(0))
	assert.True(t, out.IsInappropriate)
	assert.Equal(t, "counterfeit branding", out.InappropriateReason)
	gw.AssertExpectations(t)
}

func TestRun_UnparseablePriceLeavesPriceUnset(t *testing.T) {
	for _, reply := range []string{"It depends on the condition.", "-500", "¥-12,000"} {
		t.Run(reply, func(t *testing.T) {
			gw := new(mockGateway)
			gw.On("Generate", mock.Anything, forPurpose(PurposeFeatureExtraction)).Return("analysis", nil)
			gw.On("Generate", mock.Anything, forPurpose(PurposeDescriptionGeneration)).Return("desc", nil)
			gw.On("Generate", mock.Anything, forPurpose(PurposePriceEstimation)).Return(reply, nil)
			gw.On("Generate", mock.Anything, forPurpose(PurposeSafetyCheck)).Return("SAFE", nil)

			out := NewOrchestrator(gw).Run(context.Background(), testInput)

			assert.False(t, out.SuggestedPrice.IsSet())
			assert.Equal(t, []Stage{StagePriceEstimation}, out.Failed())
			assert.ErrorIs(t, out.Trace[2].Err, faults.ErrExtractionFailed)
		})
	}
}

func TestRun_PanicInStageBecomesInternalFault(t *testing.T) {
	failures := metrics.StageFailures.WithLabelValues(StageSafetyCheck.String(), faults.KindInternal)
	before := testutil.ToFloat64(failures)

	gw := new(mockGateway)
	gw.On("Generate", mock.Anything, forPurpose(PurposeFeatureExtraction)).Return("analysis", nil)
	gw.On("Generate", mock.Anything, forPurpose(PurposeDescriptionGeneration)).Return("desc", nil)
	gw.On("Generate", mock.Anything, forPurpose(PurposePriceEstimation)).Return("3000", nil)
	gw.On("Generate", mock.Anything, forPurpose(PurposeSafetyCheck)).
		Run(func(mock.Arguments) { panic("boom") }).
		Return("", nil)

	out := NewOrchestrator(gw).Run(context.Background(), testInput)

	assert.Equal(t, StageDone, out.Stage)
	assert.Equal(t, []Stage{StageSafetyCheck}, out.Failed())
	assert.ErrorIs(t, out.Trace[3].Err, faults.ErrInternalFault)
	assert.False(t, out.IsInappropriate)
	assert.Equal(t, "desc", out.GeneratedDescription)
	assert.Equal(t, before+1, testutil.ToFloat64(failures))
}

func TestParseSafetyVerdict(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    SafetyVerdict
		wantErr bool
	}{
		{name: "safe", input: "SAFE", want: SafetyVerdict{}},
		{name: "safe with punctuation", input: "Safe.", want: SafetyVerdict{}},
		{name: "safe sentence", input: "SAFE - ordinary headphones", want: SafetyVerdict{}},
		{name: "unsafe with reason", input: "UNSAFE: replica designer bag", want: SafetyVerdict{Inappropriate: true, Reason: "replica designer bag"}},
		{name: "unsafe markdown", input: "**UNSAFE**: contains a blade", want: SafetyVerdict{Inappropriate: true, Reason: "contains a blade"}},
		{name: "unsafe lowercase no reason", input: "unsafe", want: SafetyVerdict{Inappropriate: true, Reason: defaultUnsafeReason}},
		{name: "fenced", input: "```\nUNSAFE: drugs\n```", want: SafetyVerdict{Inappropriate: true, Reason: "drugs"}},
		{name: "prose", input: "This listing looks fine to me.", wantErr: true},
		{name: "prefix word", input: "SAFEGUARD", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSafetyVerdict(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, faults.ErrExtractionFailed)
				assert.Equal(t, SafetyVerdict{}, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOptional(t *testing.T) {
	var unset Optional[int]
	assert.False(t, unset.IsSet())
	assert.Equal(t, 7, unset.Or(7))

	v, ok := Some(0).Get()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.Equal(t, 0, Some(0).Or(7))
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "START", StageStart.String())
	assert.Equal(t, "PRICE_ESTIMATION", StagePriceEstimation.String())
	assert.Equal(t, "DONE", StageDone.String())
	assert.Equal(t, "UNKNOWN", Stage(42).String())
}

// Package workflow runs the four-stage listing analysis pipeline.
//
// The stages form a fixed linear sequence:
//
//	START → FEATURE_EXTRACTION → DESCRIPTION_GENERATION → PRICE_ESTIMATION → SAFETY_CHECK → DONE
//
// A stage that fails leaves its field unset and the pipeline continues with
// the next stage. Run always reaches DONE.
package workflow

// Optional holds a value that may be absent.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some returns an Optional holding v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// Or returns the value, or def when absent.
func (o Optional[T]) Or(def T) T {
	if !o.ok {
		return def
	}
	return o.value
}

// IsSet reports whether a value is present.
func (o Optional[T]) IsSet() bool {
	return o.ok
}

// Stage identifies a position in the pipeline.
type Stage int

const (
	StageStart Stage = iota
	StageFeatureExtraction
	StageDescriptionGeneration
	StagePriceEstimation
	StageSafetyCheck
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageStart:
		return "START"
	case StageFeatureExtraction:
		return "FEATURE_EXTRACTION"
	case StageDescriptionGeneration:
		return "DESCRIPTION_GENERATION"
	case StagePriceEstimation:
		return "PRICE_ESTIMATION"
	case StageSafetyCheck:
		return "SAFETY_CHECK"
	case StageDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// SafetyVerdict is the result of the safety check stage.
type SafetyVerdict struct {
	Inappropriate bool
	Reason        string
}

// State is threaded through the stages of one Run call. Each Optional field
// is set at most once, by the stage that owns it.
type State struct {
	Stage    Stage
	Title    string
	Category string
	Images   [][]byte

	ImageAnalysis        Optional[string]
	GeneratedDescription Optional[string]
	SuggestedPrice       Optional[int]
	Safety               Optional[SafetyVerdict]
}

// Input is what the pipeline needs from an analysis request.
type Input struct {
	Title    string
	Category string
	Images   [][]byte
}

// StageOutcome records how one stage ended. Err is nil on success.
type StageOutcome struct {
	Stage Stage
	Err   error
}

// Output is the final state reduced to what the combiner consumes.
type Output struct {
	GeneratedDescription string
	// SuggestedPrice is unset when price estimation failed.
	SuggestedPrice      Optional[int]
	IsInappropriate     bool
	InappropriateReason string

	// Stage is always StageDone.
	Stage Stage
	Trace []StageOutcome
}

// Failed returns the stages that fell back to their default.
func (o Output) Failed() []Stage {
	var failed []Stage
	for _, t := range o.Trace {
		if t.Err != nil {
			failed = append(failed, t.Stage)
		}
	}
	return failed
}

package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/raine/listing-analyzer/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Orchestrator sequences the stages over a State owned by a single Run call.
type Orchestrator struct {
	stages Stages
}

func NewOrchestrator(gateway llm.Gateway) *Orchestrator {
	return &Orchestrator{stages: NewStages(gateway)}
}

type step struct {
	stage Stage
	run   func(ctx context.Context, st *State) error
}

// plan is the fixed stage order. Each step writes only the field it owns.
func (o *Orchestrator) plan() []step {
	return []step{
		{StageFeatureExtraction, func(ctx context.Context, st *State) error {
			analysis, err := o.stages.ExtractFeatures(ctx, st.Title, st.Category, st.Images)
			if err != nil {
				return err
			}
			st.ImageAnalysis = Some(analysis)
			return nil
		}},
		{StageDescriptionGeneration, func(ctx context.Context, st *State) error {
			desc, err := o.stages.GenerateDescription(ctx, st.Title, st.Category, st.ImageAnalysis)
			if err != nil {
				return err
			}
			st.GeneratedDescription = Some(desc)
			return nil
		}},
		{StagePriceEstimation, func(ctx context.Context, st *State) error {
			price, err := o.stages.EstimatePrice(ctx, st.Title, st.Category, st.GeneratedDescription)
			if err != nil {
				return err
			}
			st.SuggestedPrice = Some(price)
			return nil
		}},
		{StageSafetyCheck, func(ctx context.Context, st *State) error {
			verdict, err := o.stages.CheckSafety(ctx, st.Title, st.Category, st.GeneratedDescription)
			if err != nil {
				return err
			}
			st.Safety = Some(verdict)
			return nil
		}},
	}
}

// Run executes every stage once, in order. A failing stage is logged and
// its field keeps the documented default; Run never returns early.
func (o *Orchestrator) Run(ctx context.Context, in Input) Output {
	st := State{
		Stage:    StageStart,
		Title:    in.Title,
		Category: in.Category,
		Images:   in.Images,
	}

	trace := make([]StageOutcome, 0, int(StageDone-StageFeatureExtraction))
	for _, s := range o.plan() {
		st.Stage = s.stage
		start := time.Now()
		err := runStage(ctx, &st, s)
		trace = append(trace, StageOutcome{Stage: s.stage, Err: err})
		if err != nil {
			kind := faults.Kind(err)
			metrics.StageFailures.WithLabelValues(s.stage.String(), kind).Inc()
			log.Warn().
				Err(err).
				Str("stage", s.stage.String()).
				Str("kind", kind).
				Str("title", st.Title).
				Msg("workflow stage failed, using default")
			continue
		}
		log.Debug().
			Str("stage", s.stage.String()).
			Dur("elapsed", time.Since(start)).
			Msg("workflow stage done")
	}
	st.Stage = StageDone

	return reduce(st, trace)
}

// runStage converts a panic inside a stage into an internal fault.
func runStage(ctx context.Context, st *State, s step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic in %s: %v", faults.ErrInternalFault, s.stage, r)
		}
	}()
	return s.run(ctx, st)
}

func reduce(st State, trace []StageOutcome) Output {
	verdict := st.Safety.Or(SafetyVerdict{})
	return Output{
		GeneratedDescription: st.GeneratedDescription.Or(""),
		SuggestedPrice:       st.SuggestedPrice,
		IsInappropriate:      verdict.Inappropriate,
		InappropriateReason:  verdict.Reason,
		Stage:                st.Stage,
		Trace:                trace,
	}
}

// Package analysis runs the listing analysis request end to end: the staged
// workflow and the direct analyzer in parallel, then the combiner.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raine/listing-analyzer/internal/co2"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/metrics"
	"github.com/raine/listing-analyzer/internal/translate"
	"github.com/raine/listing-analyzer/internal/vision"
	"github.com/raine/listing-analyzer/internal/workflow"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the staged workflow. *workflow.Orchestrator implements it.
type Orchestrator interface {
	Run(ctx context.Context, in workflow.Input) workflow.Output
}

// Translator expands search queries. *translate.Translator implements it.
type Translator interface {
	Translate(ctx context.Context, query string) (translate.Result, error)
}

// CO2Impact is the CalculateCO2Impact result.
type CO2Impact struct {
	co2.Result
	Equivalents co2.Equivalents `json:"equivalents"`
}

// Service implements the product analysis operations.
type Service struct {
	flow       Orchestrator
	direct     vision.Analyzer
	translator Translator
}

func NewService(flow Orchestrator, direct vision.Analyzer, translator Translator) *Service {
	return &Service{flow: flow, direct: direct, translator: translator}
}

// AnalyzeProduct validates req and runs the full analysis. Inference
// failures degrade the result; only invalid requests and internal faults
// are returned as errors. Once validated, the request is not cancelled by
// ctx.
func (s *Service) AnalyzeProduct(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	var (
		g      errgroup.Group
		flow   workflow.Output
		direct vision.Result
	)
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%w: panic in workflow: %v", faults.ErrInternalFault, r)
			}
		}()
		flow = s.flow.Run(ctx, workflow.Input{
			Title:    req.Title,
			Category: req.Category,
			Images:   req.Images,
		})
		return nil
	})
	g.Go(func() error {
		direct = s.analyzeDirect(ctx, vision.Input{
			Title:    req.Title,
			Category: req.Category,
			Images:   req.Images,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("product analysis failed")
		return Response{}, err
	}

	resp, err := Combine(req, flow, direct)
	if err != nil {
		log.Error().Err(err).Str("title", req.Title).Msg("failed to combine analysis results")
		return Response{}, err
	}

	failed := make([]string, 0, len(flow.Trace))
	for _, st := range flow.Failed() {
		failed = append(failed, st.String())
	}
	log.Info().
		Str("title", req.Title).
		Str("category", req.Category).
		Int("imageCount", len(req.Images)).
		Strs("failedStages", failed).
		Int("suggestedPrice", resp.SuggestedPrice).
		Bool("inappropriate", resp.IsInappropriate).
		Dur("elapsed", time.Since(start)).
		Msg("product analyzed")

	return resp, nil
}

// analyzeDirect runs the direct analyzer, substituting vision.Fallback for
// any failure including a panic.
func (s *Service) analyzeDirect(ctx context.Context, in vision.Input) (res vision.Result) {
	defer func() {
		if r := recover(); r != nil {
			res = directFallback(in, fmt.Errorf("%w: panic in direct analysis: %v", faults.ErrInternalFault, r))
		}
	}()
	res, err := s.direct.Analyze(ctx, in)
	if err != nil {
		return directFallback(in, err)
	}
	return res
}

func directFallback(in vision.Input, err error) vision.Result {
	if errors.Is(err, vision.ErrNoImages) {
		metrics.DirectAnalysisFallbacks.WithLabelValues("no_images").Inc()
		log.Info().Str("title", in.Title).Msg("no images, using default direct analysis")
		return vision.Fallback(in)
	}
	kind := faults.Kind(err)
	metrics.DirectAnalysisFallbacks.WithLabelValues(kind).Inc()
	log.Warn().Err(err).Str("kind", kind).Str("title", in.Title).Msg("direct analysis failed, using defaults")
	return vision.Fallback(in)
}

// CalculateCO2Impact runs the CO2 calculator directly.
func (s *Service) CalculateCO2Impact(ctx context.Context, in co2.Input) (CO2Impact, error) {
	res, err := co2.Calculate(in)
	if err != nil {
		return CO2Impact{}, err
	}
	return CO2Impact{Result: res, Equivalents: co2.EquivalentsFor(res.SavedKg)}, nil
}

// TranslateSearchQuery expands a marketplace search query.
func (s *Service) TranslateSearchQuery(ctx context.Context, query string) (translate.Result, error) {
	return s.translator.Translate(ctx, query)
}

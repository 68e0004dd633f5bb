package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/metrics"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// DefaultModel matches the model the marketplace was tuned against.
const DefaultModel = "gemini-flash-latest"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.50 // $0.50 per 1M input tokens (text/image/video)
	geminiOutputPricePerMillion = 3.00 // $3.00 per 1M output tokens (including thinking)
)

// GeminiConfig configures a GeminiGateway.
type GeminiConfig struct {
	APIKey string
	Model  string
	// Timeout bounds a single GenerateContent call. Zero means no timeout.
	Timeout time.Duration
	// MaxImages caps how many images are attached to one call. Zero means no cap.
	MaxImages int
}

// GeminiGateway implements Gateway using Google's Gemini API.
type GeminiGateway struct {
	client    *genai.Client
	model     string
	timeout   time.Duration
	maxImages int
}

// NewGeminiGateway creates a new Gemini-backed gateway.
func NewGeminiGateway(ctx context.Context, cfg GeminiConfig) (*GeminiGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiGateway{
		client:    client,
		model:     model,
		timeout:   cfg.Timeout,
		maxImages: cfg.MaxImages,
	}, nil
}

// Generate implements Gateway.
func (g *GeminiGateway) Generate(ctx context.Context, req Request) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	images := limitImages(req.Images, g.maxImages)
	contents := []*genai.Content{
		genai.NewContentFromParts(buildParts(req.Prompt, images), genai.RoleUser),
	}

	var config *genai.GenerateContentConfig
	if req.ResponseSchema != nil {
		config = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   req.ResponseSchema,
		}
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	metrics.InferenceDuration.WithLabelValues(req.Purpose).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InferenceCalls.WithLabelValues(req.Purpose, "error").Inc()
		return "", fmt.Errorf("%w: gemini %s call failed: %v", faults.ErrInferenceUnavailable, req.Purpose, err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		metrics.InferenceCalls.WithLabelValues(req.Purpose, "empty").Inc()
		return "", fmt.Errorf("%w: no response from Gemini for %s", faults.ErrInferenceUnavailable, req.Purpose)
	}
	metrics.InferenceCalls.WithLabelValues(req.Purpose, "ok").Inc()

	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens, geminiInputPricePerMillion, geminiOutputPricePerMillion)
		metrics.InferenceCostUSD.Add(usage.CostUSD)
	}

	log.Info().
		Str("model", g.model).
		Str("purpose", req.Purpose).
		Int("imageCount", len(images)).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Dur("elapsed", time.Since(start)).
		Msg("llm call")

	return result.Text(), nil
}

// buildParts puts the prompt first, then all images.
func buildParts(prompt string, images [][]byte) []*genai.Part {
	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: img, MIMEType: imageMIMEType(img)},
		})
	}
	return parts
}

func limitImages(images [][]byte, max int) [][]byte {
	if max > 0 && len(images) > max {
		return images[:max]
	}
	return images
}

// imageMIMEType sniffs the image type, falling back to JPEG for anything the
// sniffer does not recognise as an image.
func imageMIMEType(data []byte) string {
	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		return "image/jpeg"
	}
	return mimeType
}

func calculateGeminiCost(inputTokens, outputTokens int64, inputPrice, outputPrice float64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * inputPrice
	outputCost := float64(outputTokens) / 1_000_000 * outputPrice
	return inputCost + outputCost
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"google.golang.org/genai"
)

// Request is a single inference call: a text prompt plus zero or more images.
type Request struct {
	// Purpose names the call in logs and metrics (e.g. "feature_extraction").
	Purpose string
	Prompt  string
	Images  [][]byte
	// ResponseSchema asks the model for JSON matching the schema. Optional.
	ResponseSchema *genai.Schema
}

// Gateway is the opaque multimodal capability: given a prompt and images,
// return the model's text. Failures match faults.ErrInferenceUnavailable.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Usage contains token usage and cost information.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

// Prompt dedents a prompt template and fills in its arguments.
func Prompt(template string, args ...any) string {
	text := strings.TrimSpace(dedent.Dedent(template))
	if len(args) == 0 {
		return text
	}
	return fmt.Sprintf(text, args...)
}

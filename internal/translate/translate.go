// Package translate expands marketplace search queries across languages.
package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/raine/listing-analyzer/internal/extract"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// PurposeTranslation labels translation calls in logs and metrics.
const PurposeTranslation = "query_translation"

const unknownLanguage = "unknown"

const translationPrompt = `
	Translate the following search query to help with multilingual product search.
	Original query: "%s"

	Return a JSON object with:
	- japanese: Japanese translation or keywords
	- english: English translation or keywords
	- romanized: romanized version if applicable
	- keywords: related search keywords, synonyms and brand names
	- detected_language: language code of the original query (ja, en, ...)
	- search_intent: a brief description of what the user is looking for

	For example, "スマホ" has english "smartphone" and keywords like "phone", "mobile", "iPhone", "Android".
	"laptop" has japanese "ノートパソコン" and keywords like "PC", "MacBook", "computer".
`

var requiredKeys = []string{"japanese", "english", "keywords"}

var replySchema = extract.MustSchema("query_translation.json", `{
	"type": "object",
	"required": ["japanese", "english", "keywords"],
	"properties": {
		"japanese": {"type": "string"},
		"english": {"type": "string"},
		"romanized": {"type": "string"},
		"keywords": {"type": "array", "items": {"type": "string"}},
		"detected_language": {"type": "string"},
		"search_intent": {"type": "string"}
	}
}`)

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"japanese":          {Type: genai.TypeString},
		"english":           {Type: genai.TypeString},
		"romanized":         {Type: genai.TypeString},
		"keywords":          {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"detected_language": {Type: genai.TypeString},
		"search_intent":     {Type: genai.TypeString},
	},
	Required: requiredKeys,
}

// Result is a query expanded for multilingual search.
type Result struct {
	Japanese         string   `json:"japanese"`
	English          string   `json:"english"`
	Romanized        string   `json:"romanized"`
	Keywords         []string `json:"keywords"`
	DetectedLanguage string   `json:"detected_language"`
	SearchIntent     string   `json:"search_intent"`
}

// Echo is the result used when translation fails: the query in every field.
func Echo(query string) Result {
	return Result{
		Japanese:         query,
		English:          query,
		Romanized:        query,
		Keywords:         []string{query},
		DetectedLanguage: unknownLanguage,
		SearchIntent:     query,
	}
}

// Translator expands search queries with a model.
type Translator struct {
	gateway llm.Gateway
}

func NewTranslator(gateway llm.Gateway) *Translator {
	return &Translator{gateway: gateway}
}

// Translate expands query. Model failures degrade to Echo; only an empty
// query is an error.
func (t *Translator) Translate(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: query is required", faults.ErrInvalidRequest)
	}

	res, err := t.translate(ctx, query)
	if err != nil {
		log.Warn().Err(err).Str("kind", faults.Kind(err)).Str("query", query).Msg("query translation failed, echoing query")
		return Echo(query), nil
	}
	return res, nil
}

func (t *Translator) translate(ctx context.Context, query string) (Result, error) {
	text, err := t.gateway.Generate(ctx, llm.Request{
		Purpose:        PurposeTranslation,
		Prompt:         llm.Prompt(translationPrompt, query),
		ResponseSchema: responseSchema,
	})
	if err != nil {
		return Result{}, err
	}

	res, err := extract.Decode[Result](text, extract.Require(requiredKeys...), extract.WithSchema(replySchema))
	if err != nil {
		return Result{}, err
	}
	if res.DetectedLanguage == "" {
		res.DetectedLanguage = unknownLanguage
	}
	if res.Romanized == "" {
		res.Romanized = query
	}
	if res.SearchIntent == "" {
		res.SearchIntent = query
	}
	if len(res.Keywords) == 0 {
		res.Keywords = []string{query}
	}
	return res, nil
}

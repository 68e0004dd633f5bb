// Package extract turns free-form model replies into typed values.
//
// Every failure is reported as an error matching faults.ErrExtractionFailed;
// callers decide which default to substitute.
package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

const codeFence = "```"

// maxQuotedResponse bounds how much of a bad response ends up in error messages.
const maxQuotedResponse = 200

var numberPattern = regexp.MustCompile(`-?\d[\d,]*(?:\.\d+)?`)

type options struct {
	required []string
	schema   *jsonschema.Schema
}

// Option configures Decode.
type Option func(*options)

// Require lists keys (gjson paths) that must be present and non-null.
func Require(keys ...string) Option {
	return func(o *options) {
		o.required = append(o.required, keys...)
	}
}

// WithSchema validates the extracted object against a compiled JSON Schema
// before decoding.
func WithSchema(s *jsonschema.Schema) Option {
	return func(o *options) {
		o.schema = s
	}
}

// MustSchema compiles a JSON Schema document and panics on error. Intended for
// package-level schema variables.
func MustSchema(name, src string) *jsonschema.Schema {
	return jsonschema.MustCompileString(name, src)
}

// Strip removes surrounding whitespace and markdown code fences, including a
// language tag such as ```json.
func Strip(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, codeFence) {
		return text
	}
	text = strings.TrimPrefix(text, codeFence)
	if nl := strings.IndexByte(text, '\n'); nl != -1 {
		if tag := strings.TrimSpace(text[:nl]); !strings.ContainsAny(tag, "{[") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, codeFence)
	return strings.TrimSpace(text)
}

// Object locates the outermost JSON object in text and checks that it is
// valid JSON.
func Object(text string) (string, error) {
	text = Strip(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return "", failed("no JSON object found", text)
	}
	obj := text[start : end+1]
	if !gjson.Valid(obj) {
		return "", failed("invalid JSON", obj)
	}
	return obj, nil
}

// Decode extracts a JSON object from text and decodes it into a fresh T.
// On any failure the zero T is returned together with an error matching
// faults.ErrExtractionFailed.
func Decode[T any](text string, opts ...Option) (T, error) {
	var zero T

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	obj, err := Object(text)
	if err != nil {
		return zero, err
	}

	for _, key := range o.required {
		if r := gjson.Get(obj, key); !r.Exists() || r.Type == gjson.Null {
			return zero, failed(fmt.Sprintf("missing required key %q", key), obj)
		}
	}

	if o.schema != nil {
		dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
		dec.UseNumber()
		var doc any
		if err := dec.Decode(&doc); err != nil {
			return zero, failed(err.Error(), obj)
		}
		if err := o.schema.Validate(doc); err != nil {
			return zero, failed(fmt.Sprintf("schema validation: %v", err), obj)
		}
	}

	var out T
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return zero, failed(err.Error(), obj)
	}
	return out, nil
}

// Text returns the reply with code fences stripped, failing on empty output.
func Text(text string) (string, error) {
	text = Strip(text)
	if text == "" {
		return "", failed("empty response", text)
	}
	return text, nil
}

// Integer returns the first positive number in text, rounded to the nearest
// integer. Thousands separators are accepted ("¥12,000" -> 12000).
func Integer(text string) (int, error) {
	text = Strip(text)
	match := numberPattern.FindString(text)
	if match == "" {
		return 0, failed("no number found", text)
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0, failed(err.Error(), text)
	}
	n := math.Round(f)
	if n <= 0 || n > 1e12 {
		return 0, failed(fmt.Sprintf("implausible value %s", match), text)
	}
	return int(n), nil
}

func failed(reason, response string) error {
	if len(response) > maxQuotedResponse {
		response = response[:maxQuotedResponse] + "..."
	}
	return fmt.Errorf("%w: %s (response: %q)", faults.ErrExtractionFailed, reason, response)
}

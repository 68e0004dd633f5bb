// analyze-images runs the full product analysis on local image files and
// prints the result as JSON. Useful for trying prompts without the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/raine/listing-analyzer/config"
	"github.com/raine/listing-analyzer/internal/analysis"
	"github.com/raine/listing-analyzer/internal/llm"
	"github.com/raine/listing-analyzer/internal/translate"
	"github.com/raine/listing-analyzer/internal/vision"
	"github.com/raine/listing-analyzer/internal/workflow"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	title := flag.String("title", "", "listing title (required)")
	category := flag.String("category", "", "listing category (required)")
	description := flag.String("description", "", "user provided description")
	query := flag.String("translate", "", "translate a search query instead of analyzing images")
	verbose := flag.Bool("v", false, "log every model call")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s -title <title> -category <category> [image-path...]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "       %s -translate <query>\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables:\n")
		fmt.Fprintf(os.Stderr, "  GOOGLE_API_KEY - Required for Gemini\n")
	}
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	gateway, err := llm.NewGeminiGateway(ctx, llm.GeminiConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.GeminiModel,
		Timeout:   cfg.InferenceTimeout,
		MaxImages: cfg.MaxImagesPerCall,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating Gemini gateway: %v\n", err)
		os.Exit(1)
	}

	svc := analysis.NewService(
		workflow.NewOrchestrator(gateway),
		vision.NewGeminiAnalyzer(gateway),
		translate.NewTranslator(gateway),
	)

	if *query != "" {
		res, err := svc.TranslateSearchQuery(ctx, *query)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error translating query: %v\n", err)
			os.Exit(1)
		}
		printJSON(res)
		return
	}

	if *title == "" || *category == "" {
		flag.Usage()
		os.Exit(2)
	}

	var images [][]byte
	for _, path := range flag.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read image: %v\n", err)
			os.Exit(1)
		}
		images = append(images, data)
	}

	resp, err := svc.AnalyzeProduct(ctx, analysis.Request{
		Title:                   *title,
		Category:                *category,
		Images:                  images,
		UserProvidedDescription: *description,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error analyzing product: %v\n", err)
		os.Exit(1)
	}
	printJSON(resp)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding result: %v\n", err)
		os.Exit(1)
	}
}

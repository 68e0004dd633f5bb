// Package server exposes the analysis service as JSON RPC over HTTP.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raine/listing-analyzer/internal/analysis"
	"github.com/raine/listing-analyzer/internal/co2"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/raine/listing-analyzer/internal/translate"
	"github.com/raine/listing-analyzer/internal/workerpool"
)

// RPCPrefix is the route prefix of the product analysis operations.
const RPCPrefix = "/rpc/ProductAnalysisService"

// maxRequestBytes bounds a request body: ten 10MB images, base64 encoded.
const maxRequestBytes = 150 << 20

// Service is the set of operations served over RPC.
type Service interface {
	AnalyzeProduct(ctx context.Context, req analysis.Request) (analysis.Response, error)
	CalculateCO2Impact(ctx context.Context, in co2.Input) (analysis.CO2Impact, error)
	TranslateSearchQuery(ctx context.Context, query string) (translate.Result, error)
}

// ImageFetcher downloads images referenced by URL.
type ImageFetcher interface {
	FetchAll(ctx context.Context, urls []string) ([][]byte, error)
}

// Options configures NewRouter.
type Options struct {
	Service Service
	// Fetcher is optional; without it image_urls are rejected.
	Fetcher ImageFetcher
	Pool    *workerpool.Pool
}

type handler struct {
	svc     Service
	fetcher ImageFetcher
}

// NewRouter builds the gin engine with middleware and routes registered.
func NewRouter(opts Options) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), accessLog(), recovery())

	pool := opts.Pool
	if pool == nil {
		pool = workerpool.New(workerpool.DefaultSize)
	}
	h := &handler{svc: opts.Service, fetcher: opts.Fetcher}

	rpc := r.Group(RPCPrefix, instrument(), withWorker(pool))
	rpc.POST("/AnalyzeProduct", h.analyzeProduct)
	rpc.POST("/CalculateCO2Impact", h.calculateCO2Impact)
	rpc.POST("/TranslateSearchQuery", h.translateSearchQuery)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type analyzeProductRequest struct {
	Title    string `json:"title"`
	Category string `json:"category"`
	// Images are base64 encoded in JSON.
	Images                  [][]byte `json:"images"`
	ImageURLs               []string `json:"image_urls"`
	UserProvidedDescription string   `json:"user_provided_description"`
}

type calculateCO2Request struct {
	Category            string   `json:"category"`
	WeightKg            *float64 `json:"weight_kg" binding:"required"`
	ManufacturerCountry string   `json:"manufacturer_country"`
	ManufacturingYear   int      `json:"manufacturing_year" binding:"required"`
}

type translateRequest struct {
	Query string `json:"query"`
}

// zeroResult is the result placed next to an error for each operation.
func zeroResult(op string) any {
	switch op {
	case "AnalyzeProduct":
		return analysis.Response{DetectedObjects: []string{}}
	case "CalculateCO2Impact":
		return analysis.CO2Impact{}
	case "TranslateSearchQuery":
		return translate.Result{Keywords: []string{}}
	default:
		return nil
	}
}

func bind(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", faults.ErrInvalidRequest, err)
	}
	return nil
}

func (h *handler) analyzeProduct(c *gin.Context) {
	var body analyzeProductRequest
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}

	images := body.Images
	if len(body.ImageURLs) > 0 {
		if h.fetcher == nil {
			fail(c, fmt.Errorf("%w: image_urls are not supported", faults.ErrInvalidRequest))
			return
		}
		if total := len(images) + len(body.ImageURLs); total > analysis.MaxImages {
			fail(c, fmt.Errorf("%w: at most %d images are allowed, got %d", faults.ErrInvalidRequest, analysis.MaxImages, total))
			return
		}
		fetched, err := h.fetcher.FetchAll(c.Request.Context(), body.ImageURLs)
		if err != nil {
			fail(c, err)
			return
		}
		images = append(images, fetched...)
	}

	resp, err := h.svc.AnalyzeProduct(c.Request.Context(), analysis.Request{
		Title:                   body.Title,
		Category:                body.Category,
		Images:                  images,
		UserProvidedDescription: body.UserProvidedDescription,
	})
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, resp)
}

func (h *handler) calculateCO2Impact(c *gin.Context) {
	var body calculateCO2Request
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}

	res, err := h.svc.CalculateCO2Impact(c.Request.Context(), co2.Input{
		Category:            body.Category,
		WeightKg:            *body.WeightKg,
		ManufacturerCountry: body.ManufacturerCountry,
		ManufacturingYear:   body.ManufacturingYear,
	})
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, res)
}

func (h *handler) translateSearchQuery(c *gin.Context) {
	var body translateRequest
	if err := bind(c, &body); err != nil {
		fail(c, err)
		return
	}

	res, err := h.svc.TranslateSearchQuery(c.Request.Context(), body.Query)
	if err != nil {
		fail(c, err)
		return
	}
	succeed(c, res)
}

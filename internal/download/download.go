// Package download fetches listing photos referenced by URL.
package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/raine/listing-analyzer/internal/faults"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultTimeout is the default timeout for one image download
	DefaultTimeout = 30 * time.Second
	// DefaultMaxImageSize is the default maximum image size (10MB)
	DefaultMaxImageSize = 10 * 1024 * 1024
)

// Fetcher downloads images with a timeout and a size limit.
type Fetcher struct {
	client  *resty.Client
	timeout time.Duration
	maxSize int64
}

// NewFetcher creates a Fetcher with default settings.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:  resty.New().SetDebug(false),
		timeout: DefaultTimeout,
		maxSize: DefaultMaxImageSize,
	}
}

// WithTimeout sets a custom per-download timeout.
func (f *Fetcher) WithTimeout(timeout time.Duration) *Fetcher {
	f.timeout = timeout
	return f
}

// WithMaxSize sets a custom maximum image size.
func (f *Fetcher) WithMaxSize(maxSize int64) *Fetcher {
	f.maxSize = maxSize
	return f
}

// Fetch downloads a single image. Errors match faults.ErrInvalidRequest
// since a bad URL is the caller's fault.
func (f *Fetcher) Fetch(ctx context.Context, imageURL string) ([]byte, error) {
	data, err := f.fetch(ctx, imageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %v", faults.ErrInvalidRequest, imageURL, err)
	}
	return data, nil
}

func (f *Fetcher) fetch(ctx context.Context, imageURL string) ([]byte, error) {
	if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
		return nil, fmt.Errorf("unsupported url scheme")
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	res, err := f.client.R().
		SetContext(reqCtx).
		SetDoNotParseResponse(true).
		Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download failed: status %d", res.StatusCode())
	}

	contentType := res.Header().Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("invalid content type: expected image/*, got %s", contentType)
	}

	if res.RawResponse.ContentLength > f.maxSize {
		return nil, fmt.Errorf("image too large: %d bytes exceeds limit of %d bytes", res.RawResponse.ContentLength, f.maxSize)
	}

	// LimitReader enforces the limit even if Content-Length is missing or wrong
	data, err := io.ReadAll(io.LimitReader(body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("image too large: exceeds limit of %d bytes", f.maxSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image")
	}
	return data, nil
}

// FetchAll downloads every URL concurrently and returns the images in input
// order. The first failure cancels the remaining downloads.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) ([][]byte, error) {
	images := make([][]byte, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			data, err := f.Fetch(ctx, u)
			if err != nil {
				log.Warn().Err(err).Str("url", u).Msg("failed to download listing image")
				return err
			}
			images[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

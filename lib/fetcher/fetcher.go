package fetcher

import (
	"context"
	"fmt"
	"net/http"

	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Fetcher returns the textual content of a page. Failures are reported as
// *FetchError so callers can tell rate limiting apart from everything else.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.PageContent, error)
}

type ErrorKind string

const (
	ErrRateLimited     ErrorKind = "rate_limited"
	ErrTimeout         ErrorKind = "timeout"
	ErrNotFound        ErrorKind = "not_found"
	ErrServer          ErrorKind = "server_error"
	ErrInvalidResponse ErrorKind = "invalid_response"
)

type FetchError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func IsKind(err error, kind ErrorKind) bool {
	if fe, ok := err.(*FetchError); ok {
		return fe.Kind == kind
	}
	return false
}

func IsRateLimited(err error) bool {
	return IsKind(err, ErrRateLimited)
}

func NewFetcher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, transport http.RoundTripper) Fetcher {
	if cfg.Scrape.Endpoint != "" {
		log.Sugar().Infof("Using scrape service at %s", cfg.Scrape.Endpoint)
		return &scrapeClient{
			log:       log,
			transport: transport,
			endpoint:  cfg.Scrape.Endpoint,
			apiKey:    cfg.Scrape.APIKey,
			timeout:   cfg.Monitor.FetchTimeout,
		}
	}
	log.Sugar().Info("No scrape service configured, fetching pages directly")
	return &directFetcher{log: log, transport: transport}
}

package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/zap"
)

// scrapeClient delegates fetching to an external scrape service that returns
// the page reduced to its main content as markdown.
type scrapeClient struct {
	log       *zap.Logger
	transport http.RoundTripper
	endpoint  string
	apiKey    string
	timeout   time.Duration
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
	TimeoutMillis   int      `json:"timeout"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
		Metadata struct {
			Title string `json:"title"`
		} `json:"metadata"`
	} `json:"data"`
}

func (c *scrapeClient) Fetch(ctx context.Context, url string) (*models.PageContent, error) {
	body := scrapeRequest{
		URL:             url,
		Formats:         []string{"markdown"},
		OnlyMainContent: true,
		TimeoutMillis:   int(c.timeout.Milliseconds()),
	}

	var resp scrapeResponse
	err := requests.URL(c.endpoint).
		Transport(c.transport).
		Bearer(c.apiKey).
		BodyJSON(&body).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, classifyFetchErr(url, err)
	}

	if !resp.Success || resp.Data.Markdown == "" {
		return nil, &FetchError{Kind: ErrInvalidResponse, URL: url, Err: errors.New("scrape service returned no content")}
	}

	return &models.PageContent{Text: resp.Data.Markdown, Title: resp.Data.Metadata.Title}, nil
}

// classifyFetchErr maps transport failures onto the fetch error taxonomy.
// Rate limiting is the only kind the pipeline treats specially.
func classifyFetchErr(url string, err error) error {
	kind := ErrServer
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrTimeout
	case requests.HasStatusErr(err, http.StatusTooManyRequests):
		kind = ErrRateLimited
	case requests.HasStatusErr(err, http.StatusNotFound):
		kind = ErrNotFound
	case errors.Is(err, requests.ErrHandler):
		kind = ErrInvalidResponse
	}
	return &FetchError{Kind: kind, URL: url, Err: err}
}

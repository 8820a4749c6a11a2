package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/carlmjohnson/requests"
	"github.com/regwatch/regwatch/lib/htmltext"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/zap"
)

// directFetcher fetches the page itself and extracts the main content text.
type directFetcher struct {
	log       *zap.Logger
	transport http.RoundTripper
}

func (f *directFetcher) Fetch(ctx context.Context, url string) (*models.PageContent, error) {
	var raw string
	err := requests.URL(url).
		Transport(f.transport).
		ToString(&raw).
		Fetch(ctx)
	if err != nil {
		return nil, classifyFetchErr(url, err)
	}

	doc, err := htmlquery.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, &FetchError{Kind: ErrInvalidResponse, URL: url, Err: err}
	}

	text := htmltext.MainText(doc)
	if text == "" {
		return nil, &FetchError{Kind: ErrInvalidResponse, URL: url, Err: errors.New("no text content extracted")}
	}

	return &models.PageContent{
		Text:  text,
		Title: htmltext.SelectText(doc, "/html/head/title"),
	}, nil
}

// Package fetch retrieves pages without a browser. Static fetches are the
// cheap path used for the first page of a search; scrolling and anything
// interactive goes through the browser package.
package fetch

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/lbarthel/tubewatch/internal/logging"
)

// Client performs single-page static fetches.
type Client struct {
	log       *zap.Logger
	userAgent string
	timeout   time.Duration
}

// New builds a Client. An empty userAgent keeps colly's default.
func New(log *zap.Logger, userAgent string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{log: logging.Named(log, "fetch"), userAgent: userAgent, timeout: timeout}
}

// SearchURL composes a search results URL for a keyword. recencyParam is the
// pre-encoded filter token appended as sp.
func SearchURL(baseURL, keyword, recencyParam string) string {
	u := fmt.Sprintf("%s?search_query=%s", baseURL, url.QueryEscape(keyword))
	if recencyParam != "" {
		u += "&sp=" + recencyParam
	}
	return u
}

// Page fetches one URL and returns the raw body. Each call uses a fresh
// collector so no cookies or visit-state leak between keywords.
func (c *Client) Page(ctx context.Context, pageURL string) ([]byte, error) {
	opts := []colly.CollectorOption{
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	}
	if c.userAgent != "" {
		opts = append(opts, colly.UserAgent(c.userAgent))
	}
	col := colly.NewCollector(opts...)
	col.SetRequestTimeout(c.timeout)

	var (
		body    []byte
		fetchEr error
	)
	col.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	col.OnError(func(r *colly.Response, err error) {
		fetchEr = fmt.Errorf("fetch %s: status %d: %w", pageURL, r.StatusCode, err)
	})

	start := time.Now()
	err := col.Visit(pageURL)
	col.Wait()

	// OnError carries the status code; prefer it over Visit's bare error.
	if fetchEr != nil {
		return nil, fetchEr
	}
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	c.log.Debug("static page fetched",
		zap.String("url", pageURL),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(start)))
	return body, nil
}

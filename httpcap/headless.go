package httpcap

import (
	"context"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// HeadlessBackend renders req.URL in a headless Chrome tab and returns
// the fully-rendered DOM as the response body, for sites that require JS
// execution (spec.md §4.6).
type HeadlessBackend struct {
	allocatorOpts []chromedp.ExecAllocatorOption
	timeout       time.Duration
}

// HeadlessConfig controls a HeadlessBackend's defaults.
type HeadlessConfig struct {
	Timeout time.Duration // default 30s
}

// NewHeadlessBackend constructs a HeadlessBackend.
func NewHeadlessBackend(config HeadlessConfig) *HeadlessBackend {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))
	return &HeadlessBackend{allocatorOpts: opts, timeout: config.Timeout}
}

// Do navigates to req.URL and returns the rendered page's outer HTML as
// the body, along with the final URL reached after any client-side
// redirects and the response headers of the initial navigation.
func (b *HeadlessBackend) Do(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.allocatorOpts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var html string
	var status int64
	var finalURL string
	headers := http.Header{}

	listenNavigationStatus(taskCtx, &status, headers)

	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(req.URL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Location(&finalURL),
	); err != nil {
		return Response{}, err
	}

	if status == 0 {
		status = http.StatusOK
	}
	return Response{
		Status:   int(status),
		Headers:  headers,
		Body:     []byte(html),
		FinalURL: finalURL,
	}, nil
}

// listenNavigationStatus registers a network event listener that records
// the main-frame response's status code and headers, since chromedp has
// no synchronous "response" action of its own.
func listenNavigationStatus(ctx context.Context, status *int64, headers http.Header) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		if e, ok := ev.(*network.EventResponseReceived); ok && e.Type == network.ResourceTypeDocument {
			*status = e.Response.Status
			for k, v := range e.Response.Headers {
				if s, ok := v.(string); ok {
					headers.Set(k, s)
				}
			}
		}
	})
}

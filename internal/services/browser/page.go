package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
)

// Page is the chromedp implementation of the interfaces.Page capability
// surface. All operations run against the instance's browser context so the
// tab survives between calls.
type Page struct {
	browserCtx context.Context
	logger     arbor.ILogger

	mu     sync.Mutex
	closed bool
}

func newPage(browserCtx context.Context, logger arbor.ILogger) *Page {
	return &Page{
		browserCtx: browserCtx,
		logger:     logger,
	}
}

// run executes actions against the browser context, bounded by the caller's
// context deadline. A closed page rejects every action.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("page is closed")
	}

	runCtx := p.browserCtx
	if deadline, ok := ctx.Deadline(); ok {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(p.browserCtx, deadline)
		defer cancel()
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads the URL and waits for the load event
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// Location returns the page's current URL
func (p *Page) Location(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", fmt.Errorf("failed to read location: %w", err)
	}
	return location, nil
}

// QuerySelector reports whether at least one visible element matches the CSS
// selector. A missing element is a false result, not an error.
func (p *Page) QuerySelector(ctx context.Context, selector string) (bool, error) {
	var present bool
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el !== null && el.offsetParent !== null; })()`,
		selector)
	if err := p.run(ctx, chromedp.Evaluate(script, &present)); err != nil {
		return false, fmt.Errorf("selector query failed: %w", err)
	}
	return present, nil
}

// ReadCookies returns the cookies visible to the page, optionally restricted
// to the given URLs.
func (p *Page) ReadCookies(ctx context.Context, urls ...string) ([]models.Cookie, error) {
	var raw []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := network.GetCookies()
		if len(urls) > 0 {
			params = params.WithURLs(urls)
		}
		cookies, err := params.Do(ctx)
		if err != nil {
			return err
		}
		raw = cookies
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]models.Cookie, 0, len(raw))
	for _, c := range raw {
		expires := int64(0)
		if c.Expires > 0 {
			expires = int64(c.Expires)
		}
		cookies = append(cookies, models.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}
	return cookies, nil
}

// SetCookies installs cookies into the browser before navigation. One
// rejected cookie does not abort the batch.
func (p *Page) SetCookies(ctx context.Context, cookies []models.Cookie) error {
	return p.run(ctx,
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			failCount := 0
			for _, c := range cookies {
				var expires *cdp.TimeSinceEpoch
				if c.Expires > 0 {
					expiresTime := time.Unix(c.Expires, 0)
					if expiresTime.After(time.Now()) {
						timestamp := cdp.TimeSinceEpoch(expiresTime)
						expires = &timestamp
					}
				}

				// Chrome rejects leading-dot domains on SetCookie.
				domain := strings.TrimPrefix(c.Domain, ".")

				param := network.SetCookie(c.Name, c.Value).
					WithDomain(domain).
					WithPath(c.Path).
					WithSecure(c.Secure).
					WithHTTPOnly(c.HTTPOnly).
					WithExpires(expires)

				switch strings.ToLower(c.SameSite) {
				case "strict":
					param = param.WithSameSite(network.CookieSameSiteStrict)
				case "lax":
					param = param.WithSameSite(network.CookieSameSiteLax)
				case "none":
					param = param.WithSameSite(network.CookieSameSiteNone)
				}

				if err := param.Do(ctx); err != nil {
					failCount++
					p.logger.Warn().
						Err(err).
						Str("cookie_name", c.Name).
						Str("domain", domain).
						Msg("Failed to set cookie in browser")
				}
			}
			if failCount == len(cookies) && len(cookies) > 0 {
				return fmt.Errorf("all %d cookies rejected by browser", len(cookies))
			}
			return nil
		}),
	)
}

// SetHeaders installs extra HTTP headers on subsequent requests
func (p *Page) SetHeaders(ctx context.Context, headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	networkHeaders := make(network.Headers, len(headers))
	for k, v := range headers {
		networkHeaders[k] = v
	}
	return p.run(ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(networkHeaders),
	)
}

// SetViewport sets the emulated viewport size
func (p *Page) SetViewport(ctx context.Context, width, height int64) error {
	return p.run(ctx, chromedp.EmulateViewport(width, height))
}

// Evaluate runs a JavaScript expression; result may be nil to discard
func (p *Page) Evaluate(ctx context.Context, expression string, result any) error {
	return p.run(ctx, chromedp.Evaluate(expression, result))
}

// ListenResponses registers a callback for document responses observed on
// the page. The callback runs on the browser event goroutine.
func (p *Page) ListenResponses(fn func(interfaces.ResponseInfo)) {
	chromedp.ListenTarget(p.browserCtx, func(ev interface{}) {
		if response, ok := ev.(*network.EventResponseReceived); ok {
			fn(interfaces.ResponseInfo{
				URL:          response.Response.URL,
				Status:       response.Response.Status,
				MimeType:     response.Response.MimeType,
				IsDocument:   response.Type == network.ResourceTypeDocument,
				HasSetCookie: hasSetCookieHeader(response.Response.Headers),
			})
		}
	})
}

func hasSetCookieHeader(headers network.Headers) bool {
	for name := range headers {
		if strings.EqualFold(name, "set-cookie") {
			return true
		}
	}
	return false
}

// Close marks the page unusable; the controller owns the context teardown.
// Safe to call more than once.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

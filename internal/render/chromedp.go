// Package render implements the page renderer contract with headless
// Chrome via chromedp.
package render

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dealerwatch/dealercrawl/internal/crawl"
	"github.com/dealerwatch/dealercrawl/internal/metrics"
)

// Config controls the chromedp renderer.
type Config struct {
	Headless  bool
	UserAgent string
	// Timeout bounds one navigation; a timeout counts as a failed
	// attempt under the retry policy, never a fatal error.
	Timeout time.Duration
	// HostQPS is a hard per-host request ceiling layered under the
	// scheduler's fuzzed pacing. Zero disables it.
	HostQPS float64
	// SettleDelay gives client-side rendering time to populate the
	// dealer cards after the document is ready.
	SettleDelay time.Duration
	// MaxScroll is how many viewport-height scroll steps to issue after
	// the document is ready, so lazily rendered cards attach before the
	// capture. Zero disables scrolling.
	MaxScroll int
	// ScrollDelay is the wait after each scroll step.
	ScrollDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 500 * time.Millisecond
	}
	if c.MaxScroll < 0 {
		c.MaxScroll = 0
	}
	if c.ScrollDelay <= 0 {
		c.ScrollDelay = 300 * time.Millisecond
	}
	return c
}

// Browser renders pages in a dedicated headless Chrome instance. One
// Browser serves one scheduler lease; it must not be shared concurrently.
type Browser struct {
	cfg           Config
	logger        *zap.Logger
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	limiters      sync.Map
}

// New launches a headless browser for rendering.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: chromedp warmup: %v", crawl.ErrRendererUnavailable, err)
	}

	return &Browser{
		cfg:           cfg,
		logger:        logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}, nil
}

// Close tears down the browser and its allocator.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	b.browserCancel()
	b.allocCancel()
}

// Render navigates to the URL in a fresh tab and returns the fully loaded
// document after client-side rendering settles.
func (b *Browser) Render(ctx context.Context, rawURL string) (crawl.RenderedPage, error) {
	if err := b.waitHostBudget(ctx, rawURL); err != nil {
		return crawl.RenderedPage{}, err
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	meta := newResponseMeta()
	meta.listen(tabCtx)

	start := time.Now()
	html, finalURL, err := b.runTab(taskCtx, rawURL)
	if err != nil {
		return crawl.RenderedPage{}, classifyNavError(taskCtx, err)
	}

	return crawl.RenderedPage{
		URL:        rawURL,
		FinalURL:   meta.finalURL(finalURL, rawURL),
		StatusCode: meta.status(),
		Body:       []byte(html),
		Duration:   time.Since(start),
	}, nil
}

func (b *Browser) runTab(ctx context.Context, rawURL string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	tasks := chromedp.Tasks{
		network.Enable(),
		b.userAgentAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		b.scrollActions(),
		chromedp.Sleep(b.cfg.SettleDelay),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, tasks); err != nil {
		return "", "", err
	}
	return html, finalURL, nil
}

// scrollActions steps the viewport down MaxScroll times so listings
// that only render cards on scroll are fully attached before capture.
func (b *Browser) scrollActions() chromedp.Tasks {
	tasks := make(chromedp.Tasks, 0, 2*b.cfg.MaxScroll)
	for i := 0; i < b.cfg.MaxScroll; i++ {
		tasks = append(tasks,
			chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
			chromedp.Sleep(b.cfg.ScrollDelay),
		)
	}
	return tasks
}

func (b *Browser) userAgentAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if b.cfg.UserAgent == "" {
			return nil
		}
		return emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx)
	})
}

// classifyNavError maps chromedp failures onto the crawl taxonomy so the
// scheduler can decide retryability without knowing about chromedp.
func classifyNavError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", crawl.ErrNavigationTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", crawl.ErrRendererUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", crawl.ErrNavigationError, err)
	}
}

func (b *Browser) waitHostBudget(ctx context.Context, rawURL string) error {
	if b.cfg.HostQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse render url: %v", crawl.ErrNavigationError, err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := b.limiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.cfg.HostQPS), 1))
	limiter := val.(*rate.Limiter)

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: host budget wait: %v", crawl.ErrRendererUnavailable, err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

type responseMeta struct {
	once       sync.Once
	mu         sync.Mutex
	statusCode int
	url        string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// listen captures the main document response; subresource responses are
// ignored.
func (m *responseMeta) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
			return
		}
		m.once.Do(func() {
			m.mu.Lock()
			m.statusCode = int(resp.Response.Status)
			m.url = resp.Response.URL
			m.mu.Unlock()
		})
	})
}

func (m *responseMeta) status() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusCode == 0 {
		return 200
	}
	return m.statusCode
}

func (m *responseMeta) finalURL(located, requested string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.url != "":
		return m.url
	case located != "":
		return located
	default:
		return requested
	}
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}

// NewPool launches n independent browsers to back the scheduler's lease
// pool, plus a cleanup that closes them all.
func NewPool(cfg Config, logger *zap.Logger, n int) ([]crawl.Renderer, func(), error) {
	if n <= 0 {
		n = 1
	}
	browsers := make([]*Browser, 0, n)
	closeAll := func() {
		for _, b := range browsers {
			b.Close()
		}
	}
	renderers := make([]crawl.Renderer, 0, n)
	for i := 0; i < n; i++ {
		b, err := New(cfg, logger)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		browsers = append(browsers, b)
		renderers = append(renderers, b)
	}
	return renderers, closeAll, nil
}

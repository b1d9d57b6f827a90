package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"golang.org/x/sync/semaphore"
)

// Controller owns the browser instance arena. Unlike a round-robin render
// pool, login windows are dedicated: each instance belongs to exactly one
// session id from Acquire to Release, because the user is typing into it.
// Close-then-remove is the only mutation pattern; an instance is never
// touched after removal.
type Controller struct {
	mu        sync.Mutex
	instances map[string]*instance
	slots     *semaphore.Weighted
	config    *common.BrowserConfig
	logger    arbor.ILogger
}

// instance holds one live browser window and its teardown chain.
type instance struct {
	page            *Page
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
}

// NewController creates a browser instance controller
func NewController(config *common.BrowserConfig, logger arbor.ILogger) *Controller {
	return &Controller{
		instances: make(map[string]*instance),
		slots:     semaphore.NewWeighted(int64(config.MaxInstances)),
		config:    config,
		logger:    logger,
	}
}

// Acquire creates a visible browser instance for the id. Fails if the id is
// already in use or no arena slot frees up within the configured wait.
func (c *Controller) Acquire(ctx context.Context, id string) (interfaces.Page, error) {
	c.mu.Lock()
	if _, exists := c.instances[id]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("browser instance %s already exists", id)
	}
	c.mu.Unlock()

	slotCtx, slotCancel := context.WithTimeout(ctx, c.config.AcquireWait)
	defer slotCancel()
	if err := c.slots.Acquire(slotCtx, 1); err != nil {
		return nil, fmt.Errorf("%w: all %d instances busy", interfaces.ErrBrowserUnavailable, c.config.MaxInstances)
	}

	startTime := time.Now()

	inst, err := c.launch(id)
	if err != nil {
		c.slots.Release(1)
		return nil, err
	}

	c.mu.Lock()
	// Re-check under lock; a racing Acquire for the same id loses.
	if _, exists := c.instances[id]; exists {
		c.mu.Unlock()
		inst.teardown()
		c.slots.Release(1)
		return nil, fmt.Errorf("browser instance %s already exists", id)
	}
	c.instances[id] = inst
	c.mu.Unlock()

	c.logger.Info().
		Str("instance_id", id).
		Dur("startup_time", time.Since(startTime)).
		Int("max_instances", c.config.MaxInstances).
		Msg("Browser instance acquired")

	return inst.page, nil
}

// launch starts a Chrome process and verifies it responds.
func (c *Controller) launch(id string) (*instance, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.config.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-backgrounding-occluded-windows", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
		chromedp.Flag("window-size", fmt.Sprintf("%d,%d", c.config.WindowWidth, c.config.WindowHeight)),
	)
	if c.config.ChromePath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(c.config.ChromePath))
	}
	if c.config.UserDataDir != "" {
		allocatorOpts = append(allocatorOpts, chromedp.UserDataDir(c.config.UserDataDir))
	}
	if c.config.DisableImages {
		allocatorOpts = append(allocatorOpts, chromedp.Flag("blink-settings", "imagesEnabled=false"))
	}

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	if c.config.StartupCheck {
		testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
		defer testCancel()
		if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
			browserCancel()
			allocatorCancel()
			return nil, fmt.Errorf("browser instance failed startup test: %w", err)
		}
	}

	return &instance{
		page:            newPage(browserCtx, c.logger),
		browserCancel:   browserCancel,
		allocatorCancel: allocatorCancel,
	}, nil
}

func (i *instance) teardown() {
	if i.browserCancel != nil {
		i.browserCancel()
	}
	if i.allocatorCancel != nil {
		i.allocatorCancel()
	}
}

// Get returns the live page for the id
func (c *Controller) Get(id string) (interfaces.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	inst, ok := c.instances[id]
	if !ok {
		return nil, fmt.Errorf("browser instance %s not found", id)
	}
	return inst.page, nil
}

// Release closes the instance for the id and frees its arena slot.
// Releasing an unknown id is a no-op.
func (c *Controller) Release(id string) {
	c.mu.Lock()
	inst, ok := c.instances[id]
	if ok {
		delete(c.instances, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}

	inst.teardown()
	c.slots.Release(1)

	c.logger.Debug().Str("instance_id", id).Msg("Browser instance released")
}

// ActiveCount returns the number of live instances
func (c *Controller) ActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// Shutdown closes every instance. Blocks until done or the context expires.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.instances))
	for id := range c.instances {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	c.logger.Info().Int("instance_count", len(ids)).Msg("Shutting down browser instances")

	done := make(chan struct{})
	go func() {
		for _, id := range ids {
			c.Release(id)
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn().Msg("Browser shutdown timed out")
		return ctx.Err()
	}
}

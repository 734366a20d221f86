package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/harrison/gridpilot/internal/models"
)

// ChromeOptions configures the chromedp driver.
type ChromeOptions struct {
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	ExecPath       string
	Logf           func(format string, args ...interface{})
}

// ChromeDriver drives a Chrome instance through the DevTools protocol.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	ctx         context.Context
	cancel      context.CancelFunc
	opts        ChromeOptions
	mu          sync.Mutex
}

var (
	_ Driver         = (*ChromeDriver)(nil)
	_ LandmarkReader = (*ChromeDriver)(nil)
	_ Closer         = (*ChromeDriver)(nil)
)

// keyNames maps key names accepted in plans to kb key strings.
var keyNames = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"up":         kb.ArrowUp,
	"down":       kb.ArrowDown,
	"left":       kb.ArrowLeft,
	"right":      kb.ArrowRight,
	"pagedown":   kb.PageDown,
	"pageup":     kb.PageUp,
	"home":       kb.Home,
	"end":        kb.End,
	"space":      " ",
}

// landmarkJS lists visible headings, buttons, links and labels in the
// viewport.
const landmarkJS = `(() => {
  const sel = 'h1,h2,h3,button,a,label,[role=button],[role=tab],[role=link],input[type=submit]';
  const out = [];
  for (const el of document.querySelectorAll(sel)) {
    const r = el.getBoundingClientRect();
    if (r.width === 0 || r.height === 0 || r.bottom < 0 || r.top > window.innerHeight) continue;
    const t = (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
    if (t) out.push(t.slice(0, 80));
    if (out.length >= 200) break;
  }
  return out;
})()`

// NewChromeDriver starts a browser and returns a driver bound to its first
// tab.
func NewChromeDriver(opts ChromeOptions) (*ChromeDriver, error) {
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1280
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 800
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	var ctxOpts []chromedp.ContextOption
	if opts.Logf != nil {
		ctxOpts = append(ctxOpts, chromedp.WithLogf(opts.Logf))
	}
	ctx, cancel := chromedp.NewContext(allocCtx, ctxOpts...)

	if err := chromedp.Run(ctx, chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight))); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &ChromeDriver{
		allocCancel: allocCancel,
		ctx:         ctx,
		cancel:      cancel,
		opts:        opts,
	}, nil
}

// run executes actions on the tab, aborting when the caller's ctx ends.
func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	runCtx, cancel := context.WithCancel(d.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads url and waits for the body to be ready.
func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery))
}

// Click presses and releases the left button at p.
func (d *ChromeDriver) Click(ctx context.Context, p models.Point) error {
	x, y := float64(p.X), float64(p.Y)
	return d.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}),
	)
}

// Type sends text to the focused element one character at a time.
func (d *ChromeDriver) Type(ctx context.Context, text string) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ch := range text {
			if err := input.DispatchKeyEvent(input.KeyChar).WithText(string(ch)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

// KeyPress presses a named key such as "Enter" or "PageDown". A single
// character is sent as that character.
func (d *ChromeDriver) KeyPress(ctx context.Context, key string) error {
	keys, err := ResolveKey(key)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.KeyEvent(keys))
}

// ResolveKey maps a key name to the kb string chromedp expects.
func ResolveKey(key string) (string, error) {
	if k, ok := keyNames[strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key))]; ok {
		return k, nil
	}
	if len([]rune(key)) == 1 {
		return key, nil
	}
	return "", fmt.Errorf("unknown key %q", key)
}

// Screenshot captures the viewport as PNG.
func (d *ChromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Landmarks lists visible landmark texts.
func (d *ChromeDriver) Landmarks(ctx context.Context) ([]string, error) {
	var texts []string
	if err := d.run(ctx, chromedp.Evaluate(landmarkJS, &texts)); err != nil {
		return nil, err
	}
	return texts, nil
}

// Close shuts the browser down.
func (d *ChromeDriver) Close() error {
	d.cancel()
	d.allocCancel()
	return nil
}

// Package browser is the browser control surface used by the executor: a
// small Driver contract, a serializing Session around it, and a chromedp
// implementation.
package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/gridpilot/internal/models"
)

// Driver is the minimal set of browser operations a run needs. Coordinates
// are viewport pixels matching Screenshot.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, p models.Point) error
	Type(ctx context.Context, text string) error
	KeyPress(ctx context.Context, key string) error
	Screenshot(ctx context.Context) ([]byte, error)
}

// LandmarkReader is implemented by drivers that can list the visible
// landmark texts of the page (headings, buttons, links).
type LandmarkReader interface {
	Landmarks(ctx context.Context) ([]string, error)
}

// Closer is implemented by drivers holding resources.
type Closer interface {
	Close() error
}

// Session serializes all access to one Driver for the whole run. Driver
// failures come back as *models.DriverError; a caller context that ended
// first is reported as the context error instead.
type Session struct {
	driver Driver
	sem    chan struct{}
}

// NewSession wraps d.
func NewSession(d Driver) *Session {
	return &Session{driver: d, sem: make(chan struct{}, 1)}
}

// Driver returns the wrapped driver.
func (s *Session) Driver() Driver {
	return s.driver
}

func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) release() {
	<-s.sem
}

func (s *Session) do(ctx context.Context, op string, fn func() error) error {
	if err := s.acquire(ctx); err != nil {
		return err
	}
	defer s.release()

	err := fn()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var de *models.DriverError
	if errors.As(err, &de) {
		return err
	}
	return &models.DriverError{Op: op, Err: err}
}

// Navigate loads url.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.do(ctx, "navigate", func() error { return s.driver.Navigate(ctx, url) })
}

// Click clicks at p.
func (s *Session) Click(ctx context.Context, p models.Point) error {
	return s.do(ctx, "click", func() error { return s.driver.Click(ctx, p) })
}

// Type types text into the focused element.
func (s *Session) Type(ctx context.Context, text string) error {
	return s.do(ctx, "type", func() error { return s.driver.Type(ctx, text) })
}

// KeyPress presses a named key.
func (s *Session) KeyPress(ctx context.Context, key string) error {
	return s.do(ctx, "key_press", func() error { return s.driver.KeyPress(ctx, key) })
}

// Screenshot captures the viewport.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "screenshot", func() error {
		var err error
		data, err = s.driver.Screenshot(ctx)
		if err == nil && len(data) == 0 {
			err = errors.New("empty screenshot")
		}
		return err
	})
	return data, err
}

// Landmarks returns the page's landmark texts. ok is false when the driver
// cannot provide them.
func (s *Session) Landmarks(ctx context.Context) (texts []string, ok bool, err error) {
	reader, ok := s.driver.(LandmarkReader)
	if !ok {
		return nil, false, nil
	}
	err = s.do(ctx, "landmarks", func() error {
		var err error
		texts, err = reader.Landmarks(ctx)
		return err
	})
	return texts, true, err
}

// Close closes the driver if it holds resources.
func (s *Session) Close() error {
	if c, ok := s.driver.(Closer); ok {
		return c.Close()
	}
	return nil
}

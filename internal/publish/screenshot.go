package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DiffSelector is the element holding the side-by-side diff on a wiki page.
const DiffSelector = ".diff.diff-contentalign-left"

const defaultCaptureTimeout = 30 * time.Second

// Screenshotter captures the diff table of an edit with a headless browser.
// The browser is started on first use and restarted after it goes away.
type Screenshotter struct {
	selector string
	timeout  time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

func NewScreenshotter(timeout time.Duration) *Screenshotter {
	if timeout <= 0 {
		timeout = defaultCaptureTimeout
	}
	return &Screenshotter{selector: DiffSelector, timeout: timeout}
}

func (s *Screenshotter) Capture(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("screenshot: empty url")
	}

	browser, err := s.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := stealth.Page(browser)
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("screenshot: stealth page: %w", err)
	}
	defer func() {
		_ = rod.Try(func() { page.MustClose() })
	}()

	p := page.Context(ctx).Timeout(s.timeout)

	if err := p.Navigate(url); err != nil {
		return nil, fmt.Errorf("screenshot: navigate: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return nil, fmt.Errorf("screenshot: wait load: %w", err)
	}

	el, err := p.Element(s.selector)
	if err != nil {
		return nil, fmt.Errorf("screenshot: find %s: %w", s.selector, err)
	}

	image, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("screenshot: capture: %w", err)
	}
	return image, nil
}

func (s *Screenshotter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser == nil {
		return nil
	}
	err := s.browser.Close()
	s.browser = nil
	return err
}

func (s *Screenshotter) ensureBrowser() (*rod.Browser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		return s.browser, nil
	}

	controlURL, err := launcher.New().
		Leakless(true).
		Headless(true).
		Set("disable-background-timer-throttling").
		Set("disable-renderer-backgrounding").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("screenshot: launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	for i := 0; i < 5; i++ {
		if err = browser.Connect(); err == nil {
			break
		}
		time.Sleep(time.Duration(250*(i+1)) * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("screenshot: connect browser: %w", err)
	}

	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: browser.BrowserContextID,
	}).Call(browser); err != nil {
		log.Warn("disable browser downloads failed", "err", err)
	}

	log.Info("Headless browser started for diff screenshots")
	s.browser = browser
	return browser, nil
}

func (s *Screenshotter) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browser != nil {
		_ = rod.Try(func() { s.browser.MustClose() })
		s.browser = nil
	}
}

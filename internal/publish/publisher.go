package publish

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"anonedits/internal/domain"
)

type Stage string

const (
	StageCapture Stage = "capture"
	StageUpload  Stage = "upload"
	StageAttach  Stage = "attach"
	StagePost    Stage = "post"
)

// ErrNotConfigured is returned for accounts without publishing credentials.
var ErrNotConfigured = errors.New("publish: account has no mastodon credentials")

// StageError reports the pipeline stage that failed. Later stages did not run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("publish: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Publisher interface {
	Publish(ctx context.Context, d domain.Delivery) error
}

// Capturer renders the diff page of an edit to a PNG image.
type Capturer interface {
	Capture(ctx context.Context, url string) ([]byte, error)
}

// Poster is the subset of a Mastodon client the pipeline drives.
type Poster interface {
	UploadMedia(ctx context.Context, image []byte, filename string) (string, error)
	SetAltText(ctx context.Context, mediaID, description string) error
	PostStatus(ctx context.Context, status string, mediaIDs ...string) (string, error)
}

// Pipeline publishes a delivery in sequential stages: capture, upload,
// attach, post. Capture runs only for accounts with screenshots enabled and
// when a capturer is available; otherwise the status is posted as text.
type Pipeline struct {
	capturer  Capturer
	newPoster func(*domain.MastodonCredentials) Poster

	mu      sync.Mutex
	posters map[string]Poster
}

type PipelineOption func(*Pipeline)

func WithCapturer(c Capturer) PipelineOption {
	return func(p *Pipeline) { p.capturer = c }
}

func WithPosterFactory(f func(*domain.MastodonCredentials) Poster) PipelineOption {
	return func(p *Pipeline) { p.newPoster = f }
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		posters: make(map[string]Poster),
		newPoster: func(creds *domain.MastodonCredentials) Poster {
			return NewMastodonClient(creds.Instance, creds.AccessToken)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Publish(ctx context.Context, d domain.Delivery) error {
	if d.Account == nil || !d.Account.Mastodon.Configured() {
		return ErrNotConfigured
	}
	poster := p.poster(d.Account)

	var mediaIDs []string
	if d.Account.Screenshot && p.capturer != nil {
		image, err := p.capturer.Capture(ctx, d.Edit.URL)
		if err != nil {
			return &StageError{Stage: StageCapture, Err: err}
		}

		mediaID, err := poster.UploadMedia(ctx, image, "diff.png")
		if err != nil {
			return &StageError{Stage: StageUpload, Err: err}
		}

		if err := poster.SetAltText(ctx, mediaID, AltText(d.Edit.Page)); err != nil {
			return &StageError{Stage: StageAttach, Err: err}
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	statusURL, err := poster.PostStatus(ctx, d.Status, mediaIDs...)
	if err != nil {
		return &StageError{Stage: StagePost, Err: err}
	}

	log.Debug("Status posted", "account", d.Account.Name, "url", statusURL, "media", len(mediaIDs))
	return nil
}

func (p *Pipeline) poster(account *domain.Account) Poster {
	p.mu.Lock()
	defer p.mu.Unlock()

	if poster, ok := p.posters[account.Name]; ok {
		return poster
	}
	poster := p.newPoster(account.Mastodon)
	p.posters[account.Name] = poster
	return poster
}

func AltText(page string) string {
	return "Screenshot of edit to " + page
}

// LogPublisher only logs what would have been published.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, d domain.Delivery) error {
	account := ""
	if d.Account != nil {
		account = d.Account.Name
	}
	log.Info("Not publishing (noop)", "account", account, "status", d.Status, "url", d.Edit.URL)
	return nil
}

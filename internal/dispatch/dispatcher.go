package dispatch

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"anonedits/internal/dedup"
	"anonedits/internal/domain"
	"anonedits/internal/netaddr"
	"anonedits/internal/status"
)

// Publisher receives every status the dispatcher decides to publish.
type Publisher interface {
	Publish(ctx context.Context, d domain.Delivery) error
}

// Enricher looks up the autonomous system of an address. It is optional.
type Enricher interface {
	Lookup(addr netaddr.Value) (asn uint, org string, ok bool)
}

// Outcome describes what happened to one rendered status.
type Outcome struct {
	Delivery   domain.Delivery
	Suppressed bool
	Err        error
}

type Dispatcher struct {
	accounts       []*domain.Account
	filter         *dedup.Filter
	publisher      Publisher
	enricher       Enricher
	placeholderURL string
}

type Option func(*Dispatcher)

func WithFilter(f *dedup.Filter) Option {
	return func(d *Dispatcher) { d.filter = f }
}

func WithEnricher(e Enricher) Option {
	return func(d *Dispatcher) { d.enricher = e }
}

func WithPlaceholderURL(url string) Option {
	return func(d *Dispatcher) { d.placeholderURL = url }
}

func New(accounts []*domain.Account, publisher Publisher, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		accounts:  accounts,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.filter == nil {
		d.filter = dedup.NewFilter(dedup.NewMemoryStore())
	}
	return d
}

// Accounts returns the accounts the dispatcher evaluates, in order.
func (d *Dispatcher) Accounts() []*domain.Account {
	return d.accounts
}

// Inspect evaluates one edit against every account, in configuration order.
// Edits are expected one at a time from a single feed.
func (d *Dispatcher) Inspect(ctx context.Context, edit domain.EditEvent) []Outcome {
	if !edit.Publishable() {
		return nil
	}
	editsInspectedTotal.Inc()

	var outcomes []Outcome
	for _, account := range d.accounts {
		if !account.Enabled() {
			continue
		}
		outcomes = append(outcomes, d.inspectAccount(ctx, account, edit)...)
	}
	return outcomes
}

func (d *Dispatcher) inspectAccount(ctx context.Context, account *domain.Account, edit domain.EditEvent) []Outcome {
	renderer := status.NewRenderer(account.Budget, d.placeholderURL)

	if account.HasWhitelist() && account.Whitelist.IsWhitelisted(edit.Wiki, edit.Page) {
		delivery := domain.Delivery{
			Account: account,
			Status:  renderer.Status(account.Template, edit.Editor, edit.Page, edit.URL),
			Edit:    edit,
		}
		return []Outcome{d.deliver(ctx, delivery)}
	}

	if !account.HasRanges() || !edit.Anonymous {
		return nil
	}

	addr, err := netaddr.Parse(edit.Editor)
	if err != nil {
		log.Debug("Skipping attribution for unparseable editor", "account", account.Name, "editor", edit.Editor, "error", err)
		return nil
	}

	orgs := account.Ranges.Attribute(addr)
	if len(orgs) == 0 {
		return nil
	}

	var asn uint
	var asOrg string
	if d.enricher != nil {
		asn, asOrg, _ = d.enricher.Lookup(addr)
	}

	outcomes := make([]Outcome, 0, len(orgs))
	for _, org := range orgs {
		delivery := domain.Delivery{
			Account:        account,
			Status:         renderer.Status(account.Template, org, edit.Page, edit.URL),
			Organization:   org,
			Edit:           edit,
			ASN:            asn,
			ASOrganization: asOrg,
		}
		outcomes = append(outcomes, d.deliver(ctx, delivery))
	}
	return outcomes
}

func (d *Dispatcher) deliver(ctx context.Context, delivery domain.Delivery) Outcome {
	account := delivery.Account
	edit := delivery.Edit

	log.Info(delivery.Status, "account", account.Name, "wiki", edit.Wiki)

	if account.Throttle {
		repeat, err := d.filter.IsRepeatAndRecord(ctx, edit.Wiki, dedup.Signature(edit.Page, edit.Editor))
		if err != nil {
			log.Warn("Repeat filter unavailable, publishing anyway", "account", account.Name, "error", err)
		}
		if repeat {
			log.Debug("Suppressed repeat", "account", account.Name, "wiki", edit.Wiki, "page", edit.Page, "editor", edit.Editor)
			statusesTotal.WithLabelValues(account.Name, outcomeSuppressed).Inc()
			return Outcome{Delivery: delivery, Suppressed: true}
		}
	}

	if d.publisher == nil {
		statusesTotal.WithLabelValues(account.Name, outcomePublished).Inc()
		return Outcome{Delivery: delivery}
	}

	start := time.Now()
	if err := d.publisher.Publish(ctx, delivery); err != nil {
		publishDuration.WithLabelValues(outcomeFailed).Observe(time.Since(start).Seconds())
		statusesTotal.WithLabelValues(account.Name, outcomeFailed).Inc()
		log.Error("Publish failed", "account", account.Name, "page", edit.Page, "error", err)
		return Outcome{Delivery: delivery, Err: err}
	}
	publishDuration.WithLabelValues(outcomePublished).Observe(time.Since(start).Seconds())
	statusesTotal.WithLabelValues(account.Name, outcomePublished).Inc()
	return Outcome{Delivery: delivery}
}

package config

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"anonedits/internal/attribution"
	"anonedits/internal/domain"
	"anonedits/internal/netaddr"
)

// BuildAccounts turns the account stanzas into dispatch-ready accounts.
// An account with an invalid range or missing template is kept but disabled,
// so it produces no notifications while the rest keep running.
func BuildAccounts(cfg Config) []*domain.Account {
	accounts := make([]*domain.Account, 0, len(cfg.Accounts))

	for _, ac := range cfg.Accounts {
		account, err := buildAccount(ac)
		if err != nil {
			account.Disabled = err
			log.Error("Account disabled by configuration errors", "account", ac.Name, "error", err)
		} else {
			log.Info("Account loaded",
				"account", account.Name,
				"organizations", account.Ranges.Len(),
				"ranges", account.Ranges.RangeCount(),
				"whitelisted_pages", account.Whitelist.Len(),
				"throttle", account.Throttle,
			)
		}
		accounts = append(accounts, account)
	}

	return accounts
}

func buildAccount(ac AccountConfig) (*domain.Account, error) {
	account := &domain.Account{
		Name:       ac.Name,
		Template:   ac.Template,
		Budget:     ac.Budget,
		Throttle:   ac.Throttle,
		Screenshot: ac.Screenshot,
		Mastodon:   ac.Mastodon,
	}
	if ac.Whitelist != nil {
		account.Whitelist = attribution.Whitelist(ac.Whitelist)
	}

	var errs []error
	if ac.Template == "" {
		errs = append(errs, errors.New("template is empty"))
	}

	if ac.Ranges != nil {
		errs = append(errs, ac.Ranges.Problems()...)

		orgs := make([]attribution.Organization, 0, len(ac.Ranges.Entries))
		for _, entry := range ac.Ranges.Entries {
			org := attribution.Organization{Name: entry.Organization}
			for i, parts := range entry.Ranges {
				r, err := netaddr.ParseRange(parts...)
				if err != nil {
					errs = append(errs, fmt.Errorf("organization %q range %d: %w", entry.Organization, i, err))
					continue
				}
				org.Ranges = append(org.Ranges, r)
			}
			orgs = append(orgs, org)
		}

		table, err := attribution.NewTable(orgs...)
		if err != nil {
			errs = append(errs, err)
		} else {
			account.Ranges = table
		}
	}

	if err := errors.Join(errs...); err != nil {
		return account, fmt.Errorf("account %q: %w", ac.Name, err)
	}
	return account, nil
}

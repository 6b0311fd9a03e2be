package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"anonedits/internal/database"
	"anonedits/internal/dedup"
	"anonedits/internal/domain"
	"anonedits/internal/geolite"
	"anonedits/internal/publish"
	"anonedits/internal/support"
)

const verifyTimeout = 15 * time.Second

type credentialVerifier func(ctx context.Context, creds *domain.MastodonCredentials) error

func mastodonVerifier(httpClient *http.Client) credentialVerifier {
	return func(ctx context.Context, creds *domain.MastodonCredentials) error {
		client := publish.NewMastodonClient(creds.Instance, creds.AccessToken, publish.WithMastodonHTTPClient(httpClient))
		account, err := client.VerifyCredentials(ctx)
		if err != nil {
			return err
		}
		log.Debug("Mastodon credentials verified", "instance", creds.Instance, "acct", account.Acct)
		return nil
	}
}

// verifyAccounts checks the publishing credentials of every enabled account
// and disables the accounts whose check fails.
func verifyAccounts(ctx context.Context, accounts []*domain.Account, verify credentialVerifier) {
	for _, account := range accounts {
		if !account.Enabled() {
			continue
		}
		if !account.Mastodon.Configured() {
			log.Warn("Account has no publishing credentials, statuses will not be posted", "account", account.Name)
			continue
		}

		checkCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
		err := verify(checkCtx, account.Mastodon)
		cancel()

		if err != nil {
			account.Disabled = fmt.Errorf("account %q: mastodon credentials: %w", account.Name, err)
			log.Error("Account disabled by credential check", "account", account.Name, "error", err)
		}
	}
}

func setupFilter() (*dedup.Filter, func(), error) {
	if !support.RedisConfigured() {
		log.Debug("Repeat filter kept in memory")
		return dedup.NewFilter(dedup.NewMemoryStore()), func() {}, nil
	}

	client, err := support.GetRedisClient()
	if err != nil {
		return nil, nil, fmt.Errorf("app: repeat filter: %w", err)
	}

	log.Info("Repeat filter shared through Redis")
	store := dedup.NewRedisStore(client, support.RedisKey("lastchange", ""))
	return dedup.NewFilter(store), func() {
		if err := support.CloseRedisClient(); err != nil {
			log.Warn("error closing redis client", "error", err)
		}
	}, nil
}

func setupDatabase() (publish.RecordFunc, func(), error) {
	if !database.Configured() {
		log.Debug("Notification log disabled, DB_HOST is not set")
		return nil, func() {}, nil
	}

	if _, err := database.SetupDB(); err != nil {
		return nil, nil, fmt.Errorf("failed to set up database: %w", err)
	}

	return database.RecordNotification, func() {
		if err := database.CloseDB(); err != nil {
			log.Warn("error closing database", "error", err)
		}
	}, nil
}

// setupEnricher opens the GeoLite2-ASN database, downloading it first when a
// license key is configured and the file is missing. Enrichment is optional.
func setupEnricher(ctx context.Context) (*geolite.Reader, func()) {
	path := support.GetEnv("GEOLITE_ASN_PATH", "")
	if path == "" {
		return nil, func() {}
	}

	if key := support.GetEnv("GEOLITE_LICENSE_KEY", ""); key != "" {
		if _, err := geolite.EnsureDatabase(ctx, key, filepath.Clean(path)); err != nil {
			log.Warn("GeoLite download failed", "error", err)
		}
	}

	reader, err := geolite.Open(path)
	if err != nil {
		log.Warn("ASN enrichment disabled", "error", err)
		return nil, func() {}
	}

	return reader, func() {
		if err := reader.Close(); err != nil {
			log.Warn("error closing geolite reader", "error", err)
		}
	}
}

func setupPublisher(accounts []*domain.Account, noop bool, httpClient *http.Client, record publish.RecordFunc) (publish.Publisher, func()) {
	var publisher publish.Publisher = publish.LogPublisher{}
	closer := func() {}

	if !noop {
		opts := []publish.PipelineOption{
			publish.WithPosterFactory(func(creds *domain.MastodonCredentials) publish.Poster {
				return publish.NewMastodonClient(creds.Instance, creds.AccessToken, publish.WithMastodonHTTPClient(httpClient))
			}),
		}

		if wantsScreenshots(accounts) && !support.GetEnvBool("DISABLE_SCREENSHOTS", false) {
			screenshotter := publish.NewScreenshotter(support.GetEnvDuration("SCREENSHOT_TIMEOUT", 0))
			opts = append(opts, publish.WithCapturer(screenshotter))
			closer = func() {
				if err := screenshotter.Close(); err != nil {
					log.Warn("error closing browser", "error", err)
				}
			}
		}

		publisher = publish.NewPipeline(opts...)
	}

	if record != nil {
		publisher = publish.NewRecorder(publisher, record)
	}
	return publisher, closer
}

func wantsScreenshots(accounts []*domain.Account) bool {
	for _, account := range accounts {
		if account.Enabled() && account.Screenshot {
			return true
		}
	}
	return false
}

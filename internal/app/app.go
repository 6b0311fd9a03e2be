package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"anonedits/internal/app/server"
	"anonedits/internal/config"
	"anonedits/internal/dispatch"
	"anonedits/internal/domain"
	"anonedits/internal/feed"
	"anonedits/internal/geolite"
	"anonedits/internal/support"
)

const (
	defaultAdminPort = 8082
	outboundTimeout  = 30 * time.Second
)

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	configFlag := flag.String("config", config.DefaultConfigPath, "Path to the JSON or YAML configuration file")
	verboseFlag := flag.Bool("verbose", false, "Log every decision at debug level")
	noopFlag := flag.Bool("noop", false, "Log statuses instead of publishing them")
	portFlag := flag.Int("port", defaultAdminPort, "Port for the admin API (0 disables it)")
	flag.Parse()

	log.SetLevel(log.InfoLevel)
	if *verboseFlag || support.GetEnvBool("VERBOSE", false) {
		log.SetLevel(log.DebugLevel)
	}

	port := resolvePort("ADMIN_PORT", "PORT", *portFlag)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	accounts := config.BuildAccounts(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	socksURL := support.GetEnv("OUTBOUND_SOCKS5", "")
	outbound, err := support.NewHTTPClient(outboundTimeout, socksURL)
	if err != nil {
		return err
	}
	streaming, err := support.NewHTTPClient(0, socksURL)
	if err != nil {
		return err
	}

	if !*noopFlag {
		verifyAccounts(ctx, accounts, mastodonVerifier(outbound))
	}
	if countEnabled(accounts) == 0 {
		return errors.New("app: no usable accounts in configuration")
	}

	filter, closeFilter, err := setupFilter()
	if err != nil {
		return err
	}
	defer closeFilter()

	record, closeDB, err := setupDatabase()
	if err != nil {
		return err
	}
	defer closeDB()

	enricher, closeEnricher := setupEnricher(ctx)
	defer closeEnricher()

	publisher, closePublisher := setupPublisher(accounts, *noopFlag, outbound, record)
	defer closePublisher()

	opts := []dispatch.Option{
		dispatch.WithFilter(filter),
		dispatch.WithPlaceholderURL(cfg.Status.PlaceholderURL),
	}
	if enricher != nil {
		opts = append(opts, dispatch.WithEnricher(enricher))
	}
	dispatcher := dispatch.New(accounts, publisher, opts...)

	feedClient := feed.NewClient(cfg.Feed.URL,
		feed.WithHTTPClient(streaming),
		feed.WithUserAgent(cfg.Feed.UserAgent),
		feed.WithWikis(cfg.Feed.Wikis...),
	)
	handle := func(ctx context.Context, edit domain.EditEvent) {
		dispatcher.Inspect(ctx, edit)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return listen(gctx, feedClient, handle)
	})

	if key := support.GetEnv("GEOLITE_LICENSE_KEY", ""); enricher != nil && key != "" {
		every := support.GetEnvDuration("GEOLITE_UPDATE_INTERVAL", geolite.DefaultUpdateInterval)
		g.Go(func() error {
			return enricher.RunUpdates(gctx, key, every)
		})
	}

	if port > 0 {
		g.Go(func() error {
			return server.OpenRoutes(gctx, port, dispatcher.Accounts)
		})
	}

	log.Info("anonedits started", "accounts", len(accounts), "enabled", countEnabled(accounts), "noop", *noopFlag)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("anonedits stopped")
	return nil
}

// listen consumes the feed. With a shared Redis, only the instance holding
// the feed lease listens; the others wait to take over.
func listen(ctx context.Context, client *feed.Client, handle feed.Handler) error {
	if !support.RedisConfigured() || !support.GetEnvBool("FEED_LEASE", true) {
		return client.Listen(ctx, handle)
	}

	redisClient, err := support.GetRedisClient()
	if err != nil {
		return fmt.Errorf("app: feed lease: %w", err)
	}

	ttl := support.GetEnvDuration("FEED_LEASE_TTL", support.DefaultLeaseTTL)
	return support.RunWithLease(ctx, redisClient, support.RedisKey("feed", "leader"), ttl, func(leaseCtx context.Context) error {
		return client.Listen(leaseCtx, handle)
	})
}

func countEnabled(accounts []*domain.Account) int {
	n := 0
	for _, account := range accounts {
		if account.Enabled() {
			n++
		}
	}
	return n
}

func resolvePort(primaryEnv, legacyEnv string, fallback int) int {
	if port := readPort(primaryEnv); port != 0 {
		return port
	}
	if port := readPort(legacyEnv); port != 0 {
		return port
	}
	return fallback
}

func readPort(envKey string) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return 0
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return 0
	}
	return port
}

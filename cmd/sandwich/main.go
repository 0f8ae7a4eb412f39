package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/devlongs/sandwich-bot/internal/alert"
	"github.com/devlongs/sandwich-bot/internal/bundle"
	"github.com/devlongs/sandwich-bot/internal/config"
	"github.com/devlongs/sandwich-bot/internal/decoder"
	"github.com/devlongs/sandwich-bot/internal/eth"
	"github.com/devlongs/sandwich-bot/internal/execution"
	"github.com/devlongs/sandwich-bot/internal/metrics"
	"github.com/devlongs/sandwich-bot/internal/output"
	"github.com/devlongs/sandwich-bot/internal/registry"
	"github.com/devlongs/sandwich-bot/internal/sandwich"
	"github.com/devlongs/sandwich-bot/internal/stream"
	"github.com/devlongs/sandwich-bot/internal/tracker"
)

// Bot wires the event source, tracker and submission side together
type Bot struct {
	client    *eth.Client
	source    *stream.Source
	engine    *tracker.Engine
	submitter *bundle.Submitter
	logger    *output.Logger
	registry  *prometheus.Registry
	cfg       *config.Config
}

// NewBot dials the node and builds every component
func NewBot(ctx context.Context, cfg *config.Config) (*Bot, error) {
	lgr := output.NewLogger(cfg.Logging)

	client, err := eth.NewClient(ctx, cfg.RPC)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics(reg, "sandwich")

	pools, err := registry.New(client)
	if err != nil {
		client.Close()
		return nil, err
	}

	exec, err := execution.NewExecutor(cfg.Execution, cfg.Sandwich.BotAddress, client.ChainID(), client, m)
	if err != nil {
		client.Close()
		return nil, err
	}

	opt, err := sandwich.NewOptimizer(pools.Reader(), client, cfg.Sandwich, cfg.Execution, exec.Owner())
	if err != nil {
		client.Close()
		return nil, err
	}

	submitter := bundle.NewSubmitter(exec, alert.New(cfg.Alert), m, lgr, cfg.Sandwich.BlockInterval)
	pipeline := tracker.NewPipeline(decoder.NewExtractor(client, pools), opt, m, lgr)

	events := stream.NewBroadcaster(4096)
	engine := tracker.NewEngine(events.Subscribe(), client.Once(), pipeline, submitter, m, lgr, cfg.Sandwich, cfg.RPC.RequestTimeout)

	log.Info().
		Str("owner", exec.Owner().Hex()).
		Str("bot", cfg.Sandwich.BotAddress).
		Int("relays", len(exec.Relays())).
		Bool("dryRun", cfg.Execution.DryRun).
		Msg("Sandwich bot initialized")

	return &Bot{
		client:    client,
		source:    stream.NewSource(client, events, client.ChainID()),
		engine:    engine,
		submitter: submitter,
		logger:    lgr,
		registry:  reg,
		cfg:       cfg,
	}, nil
}

// Start runs the bot until ctx is cancelled or the node subscription fails
func (b *Bot) Start(ctx context.Context) error {
	log.Info().Msg("Starting sandwich bot...")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return b.source.Run(ctx) })
	g.Go(func() error { return b.engine.Run(ctx) })

	if b.cfg.Metrics.Addr != "" {
		g.Go(func() error { return metrics.Serve(ctx, b.cfg.Metrics.Addr, b.registry) })
	}

	// Stats ticker (every 30 seconds)
	g.Go(func() error {
		statsTicker := time.NewTicker(30 * time.Second)
		defer statsTicker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-statsTicker.C:
				b.logger.LogStats()
			}
		}
	})

	err := g.Wait()
	b.submitter.Wait()
	return err
}

// Close shuts down the bot
func (b *Bot) Close() {
	b.client.Close()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	bot, err := NewBot(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create bot")
	}
	defer bot.Close()

	if err := bot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Bot error")
	}

	bot.logger.LogStats()
	log.Info().Msg("Sandwich bot stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	mongooptions "go.mongodb.org/mongo-driver/v2/mongo/options"
	"goa.design/clue/health"
	"goa.design/clue/log"

	"github.com/camrenhall/luceron-ai-communications-agent/api"
	"github.com/camrenhall/luceron-ai-communications-agent/config"
	"github.com/camrenhall/luceron-ai-communications-agent/features/engine/anthropic"
	"github.com/camrenhall/luceron-ai-communications-agent/features/engine/openai"
	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse"
	clientspulse "github.com/camrenhall/luceron-ai-communications-agent/features/stream/pulse/clients/pulse"
	"github.com/camrenhall/luceron-ai-communications-agent/features/stream/websocket"
	"github.com/camrenhall/luceron-ai-communications-agent/features/workflow/backend"
	"github.com/camrenhall/luceron-ai-communications-agent/features/workflow/cache"
	mongostore "github.com/camrenhall/luceron-ai-communications-agent/features/workflow/mongo"
	mongoc "github.com/camrenhall/luceron-ai-communications-agent/features/workflow/mongo/clients/mongo"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/engine"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/producer"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/stream"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/telemetry"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow"
	"github.com/camrenhall/luceron-ai-communications-agent/runtime/workflow/inmem"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP streaming service",
	RunE:  runServe,
}

// closer releases a resource acquired while wiring the service.
type closer func(context.Context) error

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if debugF {
		cfg.Server.Debug = true
	}

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(cmd.Context(), log.WithFormat(format))
	if cfg.Server.Debug {
		ctx = log.Context(ctx, log.WithDebug())
		log.Debugf(ctx, "debug logs enabled")
	}
	log.Print(ctx, log.KV{K: "addr", V: cfg.Server.Addr()}, log.KV{K: "store", V: cfg.Store.Driver})

	var (
		logger  = telemetry.NewClueLogger()
		metrics = telemetry.NewOtelMetrics()
		tracer  = telemetry.NewOtelTracer()
		closers []closer
		pingers []health.Pinger
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](shutdownCtx); err != nil {
				log.Errorf(ctx, err, "failed to release resource")
			}
		}
	}()

	coord := stream.NewCoordinator(
		stream.WithCapacity(cfg.Stream.Capacity),
		stream.WithGracePeriod(cfg.Stream.GracePeriod),
		stream.WithIdleTimeout(cfg.Stream.IdleTimeout),
		stream.WithReapInterval(cfg.Stream.ReapInterval),
		stream.WithMaxStreams(cfg.Stream.MaxStreams),
		stream.WithMaxSubscribers(cfg.Stream.MaxSubscribers),
		stream.WithLogger(logger),
		stream.WithMetrics(metrics),
	)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream coordinator: %w", err)
	}
	closers = append(closers, coord.Close)

	store, storeClosers, storePingers, err := newStore(ctx, cfg.Store)
	closers = append(closers, storeClosers...)
	if err != nil {
		return err
	}
	pingers = append(pingers, storePingers...)

	eng, agentType, err := newEngine(cfg.Agent)
	if err != nil {
		return err
	}

	popts := []producer.Option{
		producer.WithStore(store),
		producer.WithHeartbeatInterval(cfg.Producer.HeartbeatInterval),
		producer.WithAgentType(agentType),
		producer.WithLogger(logger),
		producer.WithMetrics(metrics),
		producer.WithTracer(tracer),
	}
	var remote api.RemoteSubscriber
	if cfg.Pulse.RedisURL != "" {
		streams, subscriber, pulseClosers, err := newPulse(cfg.Pulse)
		closers = append(closers, pulseClosers...)
		if err != nil {
			return err
		}
		popts = append(popts, producer.WithSink(streams.Sink()))
		pingers = append(pingers, streams.Client())
		remote = subscriber
		log.Print(ctx, log.KV{K: "pulse", V: "enabled"})
	}

	adapter, err := producer.New(coord, eng, popts...)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}

	server, err := api.New(api.Options{
		Coordinator: coord,
		Starter:     adapter,
		Store:       store,
		Remote:      remote,
		Pingers:     pingers,
		Upgrader:    websocket.NewUpgrader(originAllower(cfg.Server.AllowedOrigins)),
		Debug:       cfg.Server.Debug,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	srv := &http.Server{Addr: cfg.Server.Addr(), Handler: server.Handler(ctx), ReadHeaderTimeout: time.Second * 60}
	// Streaming responses only end once their workflow does; closing the
	// coordinator ends them so Shutdown does not wait on live feeds.
	srv.RegisterOnShutdown(func() {
		if err := coord.Close(context.WithoutCancel(ctx)); err != nil {
			log.Errorf(ctx, err, "failed to close stream coordinator")
		}
	})

	errc := make(chan error, 2)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf(ctx, "HTTP server listening on %q", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	reason := <-errc
	log.Printf(ctx, "exiting (%v)", reason)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "failed to shutdown HTTP server")
	}
	if err := adapter.Wait(shutdownCtx); err != nil {
		log.Errorf(ctx, err, "workflows still running at shutdown")
	}
	log.Printf(ctx, "exited")
	return nil
}

// newStore builds the configured workflow store, wrapped in the read cache
// when enabled.
func newStore(ctx context.Context, cfg config.StoreConfig) (workflow.Store, []closer, []health.Pinger, error) {
	var (
		store   workflow.Store
		closers []closer
		pingers []health.Pinger
	)
	switch cfg.Driver {
	case config.StoreMongo:
		client, err := mongodriver.Connect(mongooptions.Client().ApplyURI(cfg.Mongo.URI))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to mongo: %w", err)
		}
		closers = append(closers, client.Disconnect)
		ms, err := mongostore.NewStoreFromMongo(mongoc.Options{
			Client:     client,
			Database:   cfg.Mongo.Database,
			Collection: cfg.Mongo.Collection,
			Timeout:    cfg.Mongo.Timeout,
		})
		if err != nil {
			return nil, closers, nil, fmt.Errorf("failed to create mongo store: %w", err)
		}
		store = ms
		pingers = append(pingers, ms.Client())
	case config.StoreBackend:
		bs, err := backend.New(cfg.Backend.URL,
			backend.WithAPIKey(cfg.Backend.APIKey),
			backend.WithTimeout(cfg.Backend.Timeout))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create backend store: %w", err)
		}
		store = bs
	default:
		store = inmem.New()
	}
	log.Print(ctx, log.KV{K: "workflow-store", V: cfg.Driver})

	if !cfg.Cache.Enabled {
		return store, closers, pingers, nil
	}
	cached, err := cache.New(store, cache.Options{TTL: cfg.Cache.TTL, TerminalTTL: cfg.Cache.TerminalTTL})
	if err != nil {
		return nil, closers, nil, fmt.Errorf("failed to create store cache: %w", err)
	}
	return cached, closers, pingers, nil
}

// newEngine builds the reasoning loop described by the agent profile.
func newEngine(cfg config.AgentConfig) (engine.Engine, string, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, "", fmt.Errorf("invalid agent profile: %w", err)
	}
	prompt, err := engine.LoadSystemPrompt(profile.SystemPromptFile)
	if err != nil {
		return nil, "", err
	}
	key, err := cfg.APIKey(profile.Provider)
	if err != nil {
		return nil, "", err
	}

	var model engine.Model
	switch profile.Provider {
	case "openai":
		model, err = openai.NewFromAPIKey(key, openai.Options{
			Model:       profile.Model,
			MaxTokens:   profile.MaxTokens,
			Temperature: profile.Temperature,
		})
	default:
		model, err = anthropic.NewFromAPIKey(key, anthropic.Options{
			Model:       profile.Model,
			MaxTokens:   profile.MaxTokens,
			Temperature: profile.Temperature,
		})
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to create %s model: %w", profile.Provider, err)
	}

	loop, err := engine.NewLoop(model,
		engine.WithSystemPrompt(prompt),
		engine.WithMaxIterations(profile.MaxIterations),
		engine.WithMaxTokens(profile.MaxTokens),
		engine.WithTemperature(profile.Temperature),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create engine: %w", err)
	}
	return loop, profile.AgentType, nil
}

// newPulse connects the Redis event mirror.
func newPulse(cfg config.PulseConfig) (*pulse.Streams, *pulse.Subscriber, []closer, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	closers := []closer{func(context.Context) error { return rdb.Close() }}

	client, err := clientspulse.New(clientspulse.Options{
		Redis:            rdb,
		StreamMaxLen:     cfg.StreamMaxLen,
		OperationTimeout: cfg.OperationTimeout,
	})
	if err != nil {
		return nil, nil, closers, fmt.Errorf("failed to create pulse client: %w", err)
	}
	streams, err := pulse.NewStreams(client)
	if err != nil {
		return nil, nil, closers, err
	}
	closers = append(closers, streams.Close)
	subscriber, err := streams.NewSubscriber(pulse.SubscriberOptions{})
	if err != nil {
		return nil, nil, closers, fmt.Errorf("failed to create pulse subscriber: %w", err)
	}
	return streams, subscriber, closers, nil
}

// originAllower accepts websocket upgrades from the listed origins, or from
// anywhere when none are listed.
func originAllower(origins []string) func(string) bool {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
}

// Command mcphost runs the MongoDB MCP host: a line-delimited JSON-RPC
// tool server for a planning LLM, fronted by a minimal HTTP surface
// that drives the chat orchestrator end to end.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/homelead/mcphost/internal/config"
	"github.com/homelead/mcphost/internal/enrich"
	"github.com/homelead/mcphost/internal/obslog"
	"github.com/homelead/mcphost/internal/orchestrator"
	"github.com/homelead/mcphost/internal/router"
	"github.com/homelead/mcphost/internal/rpcserver"
	"github.com/homelead/mcphost/internal/schema"
	"github.com/homelead/mcphost/internal/session"
	"github.com/homelead/mcphost/internal/telemetry"
	"github.com/homelead/mcphost/internal/tools"
	"github.com/homelead/mcphost/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:                "mcphost",
		Short:              "Natural-language MongoDB tool host for a real-estate CRM",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(context.Background(), args)
		},
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	sess := session.New(cfg)
	if err := sess.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to mongodb: %w", err)
	}

	// The server is built before the real logger exists, purely so
	// obslog.New can bind its MCP notification sink to this server's
	// subscriber set; SetRunner/SetTelemetry/SetLogger fill in the rest
	// below, mirroring the original's setup_logging(rpc_server, ...)
	// call sitting between rpc_server construction and tool registration.
	srv := rpcserver.New(sess, cfg, nil, nil, obslog.Discard())
	log := obslog.New(cfg.LogPath, cfg.LogLevel == "DEBUG", srv.LogSubscribers)
	srv.SetLogger(log)

	tel := telemetry.New(cfg, log)
	srv.SetTelemetry(tel)

	deps := tools.Deps{Session: sess, Config: cfg, Log: log}
	runner := tools.NewRunner(deps, tel)
	registerTools(runner, deps, cfg)
	srv.SetRunner(runner)

	srv.Resource("config", func() (any, error) { return cfg.AsResource(), nil })

	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)

	db, err := sess.DB("")
	if err != nil {
		return fmt.Errorf("resolving default database: %w", err)
	}

	orch := orchestrator.New(
		runner,
		sess,
		router.New(openaiClient, log),
		enrich.New(db, log),
		openaiClient,
		cfg.ModelName,
		time.Duration(orDefault(cfg.OpenAITimeoutSecs, 30))*time.Second,
		log,
	)
	if err := orch.Prime(ctx); err != nil {
		return fmt.Errorf("priming orchestrator: %w", err)
	}

	tel.Record("server_start", 0, true, nil)

	ctx, cancel := context.WithCancel(ctx)
	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("received signal: %s", <-c)
	}()

	var wg sync.WaitGroup
	httpSrv := newHTTPServer(ctx, cfg, orch, srv, log)
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("http server: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		codec := transport.NewStdio(os.Stdin, os.Stdout, log)
		log.Info("stdio rpc server ready")
		if err := srv.Serve(ctx, codec); err != nil {
			log.Warn("stdio rpc server stopped", "error", err)
		}
	}()

	reason := <-errc
	log.Info("shutting down", "reason", reason.Error())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	srv.Close(shutdownCtx)

	wg.Wait()
	tel.Record("server_stop", 0, true, nil)
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// registerTools registers every curated tool, skipping any whose name
// appears in cfg.DisabledTools.Names/Categories/Types — the original's
// six tools plus the supplemental explain tool have no category/type
// taxonomy of their own, so those two lists are only ever matched by
// exact tool name here.
func registerTools(r *tools.Runner, deps tools.Deps, cfg *config.Config) {
	reg := schema.Load()
	all := []tools.Tool{
		tools.NewListCollections(deps),
		tools.NewCollectionSchema(deps, reg),
		tools.NewCount(deps),
		tools.NewFind(deps),
		tools.NewAggregate(deps, reg),
		tools.NewSearch(deps),
		tools.NewExplain(deps),
	}
	disabled := make(map[string]bool)
	for _, n := range cfg.DisabledTools.Names {
		disabled[n] = true
	}
	for _, n := range cfg.DisabledTools.Categories {
		disabled[n] = true
	}
	for _, n := range cfg.DisabledTools.Types {
		disabled[n] = true
	}
	for _, t := range all {
		if disabled[t.Name()] {
			continue
		}
		r.Register(t)
	}
}

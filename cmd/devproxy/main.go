package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/habitat-network/chrome-devproxy/internal/config"
	"github.com/habitat-network/chrome-devproxy/internal/identity"
	"github.com/habitat-network/chrome-devproxy/internal/logging"
	"github.com/habitat-network/chrome-devproxy/internal/proxy"
	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/habitat-network/chrome-devproxy/internal/server"
	"github.com/habitat-network/chrome-devproxy/internal/telemetry"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("error running command")
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:   "devproxy",
		Usage:  "Development proxy for the console shell",
		Flags:  globalFlags(),
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Compile proxy routes and start the proxy",
				Flags:  serveFlags(),
				Action: serve,
			},
			{
				Name:  "routes",
				Usage: "Compile proxy routes and print them as YAML",
				Flags: append(routeFlags(), &cli.BoolFlag{
					Name:  fSkipProbe,
					Usage: "Do not check that local apps are running",
				}),
				Action: printRoutes,
			},
			tokenCommand(),
			ssoURLCommand(),
			userConfigCommand(),
		},
	}
}

// loadConfig reads the config file and applies any flags that were set on top of it.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.NewConfig(cmd.String(fConfig))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	for flag, key := range configKeys {
		if !cmd.IsSet(flag) {
			continue
		}
		cfg.Set(key, cmd.Value(flag))
	}
	logging.NewLogger(cfg.LogLevel())
	return cfg, nil
}

func compileRules(ctx context.Context, cfg *config.Config, prober routes.Prober) ([]*routes.Rule, error) {
	opts, err := cfg.RouteOptions()
	if err != nil {
		return nil, err
	}
	if prober != nil {
		opts.Prober = prober
	}

	identityOpts, err := cfg.IdentityOptions()
	if err != nil {
		return nil, err
	}
	opts.Transform = identity.NewSynthesizer(identityOpts).Transform

	rules, err := routes.GetProxyRoutes(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("unable to compile proxy routes: %w", err)
	}
	return rules, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// Setup context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A local app that is not running aborts startup; no partial route set is served.
	rules, err := compileRules(ctx, cfg, nil)
	if err != nil {
		return err
	}

	proxyServer, err := proxy.NewProxyServer(&log.Logger, rules, proxy.WithStaticDir(cfg.StaticDir()))
	if err != nil {
		return fmt.Errorf("unable to setup proxy server: %w", err)
	}

	var handler http.Handler = proxyServer
	if cfg.TelemetryEnabled() {
		otelClose, err := telemetry.SetupOpenTelemetry(ctx, cfg.Environment())
		if err != nil {
			return fmt.Errorf("failed setting up open telemetry: %w", err)
		}
		defer func() { _ = otelClose(context.Background()) }()
		handler = otelhttp.NewHandler(handler, telemetry.ServiceName)
		log.Info().Msg("successfully set up open telemetry")
	}

	addr := ":" + cfg.Port()
	ln, err := proxyServer.Listener(addr, proxy.TailscaleOptions{
		Authkey:  cfg.TailscaleAuthkey(),
		Hostname: cfg.TailscaleHostname(),
		StateDir: cfg.TailscaleStatePath(),
	})
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}

	for _, rule := range rules {
		log.Info().Msgf("proxying %s → %s", rule.Match, rule.Target)
	}

	s := &http.Server{
		Handler:           handler,
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
	}

	tlsConfig, err := server.LoadCertDir(cfg.HTTPSCerts())
	if err != nil {
		_ = ln.Close()
		return err
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(server.ServeFn(s, "chrome dev proxy", server.WithListener(ln), server.WithTLS(tlsConfig)))

	// Gracefully shutdown server when context is cancelled
	eg.Go(func() error {
		<-egCtx.Done()
		log.Info().Msg("shutting down proxy")
		return s.Shutdown(context.Background())
	})

	err = eg.Wait()
	if err != nil {
		log.Err(err).Msgf("proxy shut down returned an error")
	}
	return err
}

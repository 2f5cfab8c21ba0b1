package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmacdonaldsmith/rcl-go/internal/config"
	"github.com/rmacdonaldsmith/rcl-go/internal/logging"
	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/internal/transport/remote"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
)

const (
	// Application info
	appName    = "rcl-transportd"
	appVersion = "0.1.0"
)

// options holds the parsed command line.
type options struct {
	configPath   string
	listen       string
	authSecret   string
	authRequired bool
	queueDepth   int
	logLevel     string
	logFormat    string
	issueToken   string
	showVersion  bool

	// set records the flags given explicitly; they override the file.
	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (*options, error) {
	opts := &options{set: make(map[string]bool)}

	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", "", "Path to a YAML configuration file")
	fs.StringVar(&opts.listen, "listen", config.DefaultListen, "Listen address of the gRPC bridge")
	fs.StringVar(&opts.authSecret, "auth-secret", "", "Secret used to sign client tokens")
	fs.BoolVar(&opts.authRequired, "auth-required", false, "Reject bridge calls without a valid token")
	fs.IntVar(&opts.queueDepth, "queue-depth", config.DefaultQueueDepth, "Default subscription queue depth")
	fs.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	fs.StringVar(&opts.logFormat, "log-format", "text", "Log format (text, json, auto)")
	fs.StringVar(&opts.issueToken, "issue-token", "", "Print a token for the given client ID and exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	fs.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})
	return opts, nil
}

// loadConfig reads the configuration file, if any, and applies the flags
// given on the command line on top of it.
func loadConfig(opts *options) (*config.Config, error) {
	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	// Flags without a file behave like a file holding the flag defaults.
	apply := func(name string) bool {
		return opts.set[name] || opts.configPath == ""
	}
	if apply("listen") {
		cfg.Listen = opts.listen
	}
	if opts.set["auth-secret"] {
		cfg.Auth.Secret = opts.authSecret
	}
	if opts.set["auth-required"] {
		cfg.Auth.Required = opts.authRequired
	}
	if apply("queue-depth") {
		cfg.Transport.QueueDepth = opts.queueDepth
	}
	if apply("log-level") {
		cfg.Log.Level = opts.logLevel
	}
	if apply("log-format") {
		cfg.Log.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func issueToken(cfg *config.Config, clientID string) (string, error) {
	if cfg.Auth.Secret == "" {
		return "", fmt.Errorf("cannot issue a token: %w", config.ErrMissingSecret)
	}
	token, _, err := remote.NewJWTAuth(cfg.Auth.Secret, cfg.Auth.TokenTTL).GenerateToken(clientID)
	return token, err
}

func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Handle version flag
	if opts.showVersion {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	if opts.issueToken != "" {
		token, err := issueToken(cfg, opts.issueToken)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		log.Fatalf("❌ Invalid log configuration: %v", err)
	}
	rcl.SetLogger(logger)

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Printf("🚀 Starting %s v%s", appName, appVersion)
	log.Printf("🔌 Bridge Listen: %s", cfg.Listen)
	log.Printf("🔐 Auth Required: %t", cfg.Auth.Required)
	log.Printf("📦 Queue Depth: %d", cfg.Transport.QueueDepth)

	tr := intraprocess.New(
		intraprocess.WithLogger(logger),
		intraprocess.WithDefaultDepth(cfg.Transport.QueueDepth),
	)
	defer func() {
		if err := tr.Close(); err != nil {
			log.Printf("⚠️  Error closing transport: %v", err)
		}
	}()

	srv, err := remote.NewServer(cfg.Bridge(), tr, logger)
	if err != nil {
		log.Fatalf("❌ Failed to create bridge server: %v", err)
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", cfg.Listen, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupGracefulShutdown(cancel)

	log.Printf("✅ %s started successfully on %s", appName, lis.Addr())
	log.Printf("💡 Use Ctrl+C to shutdown gracefully")

	if err := run(ctx, srv, lis); err != nil {
		log.Printf("❌ %v", err)
		return
	}
	log.Printf("👋 %s stopped", appName)
}

// run serves the bridge on lis until ctx is cancelled or serving fails.
func run(ctx context.Context, srv *remote.Server, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		log.Printf("🛑 Stopping bridge server...")
		if err := srv.Close(); err != nil {
			return fmt.Errorf("error closing bridge server: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		_ = srv.Close()
		return err
	}
}

// setupGracefulShutdown cancels the main context on SIGINT, SIGTERM or SIGHUP
func setupGracefulShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		sig := <-sigChan
		log.Printf("🛑 Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()
}

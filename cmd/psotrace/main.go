// psotrace decodes the PSO game protocol from packet captures.
//
//	psotrace [flags] capture.pcap [more.pcapng ...]
//	psotrace [flags] dump server.bin client.bin
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/psotrace/internal/capture"
	"github.com/udisondev/psotrace/internal/config"
	"github.com/udisondev/psotrace/internal/crypto"
	"github.com/udisondev/psotrace/internal/db"
	"github.com/udisondev/psotrace/internal/report"
	"github.com/udisondev/psotrace/internal/session"
	"github.com/udisondev/psotrace/internal/trace"
)

var errUsage = errors.New("usage: psotrace [flags] capture.pcap [...] | psotrace [flags] dump server.bin client.bin")

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

// flags override config values when set.
type flags struct {
	configPath string
	cipher     string
	jsonPath   string
	live       string
	debug      bool
	hexdump    bool
	hexdumpSet bool
}

func parseFlags(args []string) (flags, []string, error) {
	var f flags
	fs := flag.NewFlagSet("psotrace", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "config file (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	fs.StringVar(&f.cipher, "cipher", "", "cipher variant: gamecube or pc")
	fs.StringVar(&f.jsonPath, "json", "", "write JSON lines to this file (- for stdout)")
	fs.StringVar(&f.live, "live", "", "serve a websocket feed on this address")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.hexdump, "hexdump", true, "dump message bodies (-hexdump=false for headers only)")
	if err := fs.Parse(args); err != nil {
		return f, nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == "hexdump" {
			f.hexdumpSet = true
		}
	})
	return f, fs.Args(), nil
}

func (f flags) apply(cfg *config.Trace) {
	if f.cipher != "" {
		cfg.Cipher = f.cipher
	}
	if f.jsonPath != "" {
		cfg.JSONPath = f.jsonPath
	}
	if f.live != "" {
		cfg.Live.Listen = f.live
	}
	if f.debug {
		cfg.LogLevel = "debug"
	}
	if f.hexdumpSet {
		cfg.Console.Hexdump = f.hexdump
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, rest, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.LoadTrace(config.Path(f.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	f.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	setupLogging(cfg.LogLevel)

	variant, err := cfg.Variant()
	if err != nil {
		return err
	}

	if len(rest) > 0 && rest[0] == "dump" {
		return runDump(rest[1:], variant, report.NewConsole(stdout, cfg.Console.Hexdump))
	}
	if len(rest) == 0 {
		return errUsage
	}

	slog.Info("psotrace starting", "captures", len(rest), "cipher", variant, "workers", cfg.Workers)

	out, err := openOutputs(ctx, cfg, stdout)
	if err != nil {
		return err
	}
	defer out.close()

	total, err := traceCaptures(ctx, cfg, variant, rest, out)
	if err != nil {
		return err
	}

	slog.Info("all captures processed", "stats", total.String())
	return nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	})))
}

// outputs are the sinks configured for a run.
type outputs struct {
	sink    trace.MultiSink
	console *report.Console
	closers []func()
}

func (o *outputs) close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
}

func openOutputs(ctx context.Context, cfg config.Trace, stdout io.Writer) (*outputs, error) {
	out := &outputs{}

	if cfg.Console.Enabled {
		out.console = report.NewConsole(stdout, cfg.Console.Hexdump)
		out.sink = append(out.sink, out.console)
	}

	switch cfg.JSONPath {
	case "":
	case "-":
		out.sink = append(out.sink, report.NewJSONLines(stdout))
	default:
		file, err := os.Create(cfg.JSONPath)
		if err != nil {
			out.close()
			return nil, fmt.Errorf("creating JSON output: %w", err)
		}
		out.closers = append(out.closers, func() { file.Close() })
		out.sink = append(out.sink, report.NewJSONLines(file))
	}

	if cfg.Live.Listen != "" {
		hub, err := serveLive(cfg.Live.Listen, out)
		if err != nil {
			out.close()
			return nil, err
		}
		out.sink = append(out.sink, hub)
	}

	if cfg.Database.Enabled {
		dsn := cfg.Database.DSN()
		if err := db.RunMigrations(ctx, dsn); err != nil {
			out.close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		database, err := db.New(ctx, dsn, int32(cfg.Workers))
		if err != nil {
			out.close()
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		out.closers = append(out.closers, database.Close)
		out.sink = append(out.sink, db.NewMessageRepository(database.Pool()))
		slog.Info("database connected", "host", cfg.Database.Host, "dbname", cfg.Database.DBName)
	}

	return out, nil
}

func serveLive(addr string, out *outputs) (*report.Hub, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening for live clients: %w", err)
	}

	hub := report.NewHub()
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("live feed server", "err", err)
		}
	}()
	slog.Info("live feed listening", "addr", ln.Addr().String(), "path", "/ws")

	out.closers = append(out.closers, func() {
		hub.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return hub, nil
}

// traceCaptures runs one driver per capture, each with its own router.
func traceCaptures(ctx context.Context, cfg config.Trace, variant crypto.Variant, paths []string, out *outputs) (trace.Stats, error) {
	var (
		mu    sync.Mutex
		total trace.Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)

	for _, path := range paths {
		g.Go(func() error {
			name := filepath.Base(path)

			src, err := capture.Open(path)
			if err != nil {
				return err
			}
			defer src.Close()

			slog.Debug("processing capture", "capture", name, "link_type", src.LinkType())
			d := trace.NewDriver(name, session.NewRouter(variant), out.sink, trace.WithPorts(cfg.Ports...))
			st, err := d.Run(gctx, src)
			if err != nil {
				return fmt.Errorf("capture %s: %w", name, err)
			}

			mu.Lock()
			total.Add(st)
			mu.Unlock()

			if out.console != nil {
				if err := out.console.Summary(name, st); err != nil {
					return err
				}
			}
			slog.Info("capture done", "capture", name, "stats", st.String())
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return total, err
	}
	return total, nil
}

func runDump(args []string, variant crypto.Variant, console *report.Console) error {
	if len(args) != 2 {
		return errUsage
	}

	server, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading server dump: %w", err)
	}
	client, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading client dump: %w", err)
	}

	d, err := trace.DecodeDumps(server, client, variant)
	if err != nil {
		return err
	}
	slog.Info("session init",
		"kind", d.Init.Server,
		"server_key", fmt.Sprintf("%08x", d.Init.ServerKey),
		"client_key", fmt.Sprintf("%08x", d.Init.ClientKey),
	)

	if err := console.Stream("server -> client", d.Server); err != nil {
		return err
	}
	return console.Stream("client -> server", d.Client)
}

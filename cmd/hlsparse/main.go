// The hlsparse command parses HLS media playlists and reports their
// discontinuity runs, either once on the command line or as an HTTP service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/catalog"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/cluster"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/export"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/server"
	"github.com/ssukijth0330/disney-hls-parser-new-discontinuity/internal/source"
)

const (
	version = "1.0.0"
)

// options carries everything run needs from the command line.
type options struct {
	location     string
	format       export.Format
	resolve      bool
	serve        bool
	port         int
	name         string
	raftID       string
	raftBind     string
	peers        []string
	raftLogLevel string
}

func main() {
	// Parse command-line flags
	var (
		format       = flag.String("format", "text", "Output format: json, text or m3u8")
		resolve      = flag.Bool("resolve", false, "Resolve segment URIs against the playlist location")
		serve        = flag.Bool("serve", false, "Run the HTTP catalog server instead of printing")
		port         = flag.Int("port", 8080, "HTTP server port (with -serve)")
		name         = flag.String("name", "default", "Catalog name for a playlist preloaded with -serve")
		verbose      = flag.Bool("verbose", false, "Enable verbose logging")
		showVersion  = flag.Bool("version", false, "Show version and exit")
		raftID       = flag.String("raft-id", "", "Raft node ID; enables the replicated catalog (with -serve)")
		raftBind     = flag.String("raft-bind", "127.0.0.1:7000", "Raft bind address (host:port)")
		peers        = flag.String("peers", "", "Comma-separated Raft peer addresses, including this node")
		raftLogLevel = flag.String("raft-log-level", "off", "Raft internal log level (off, error, warn, info, debug, trace)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "hlsparse - HLS media playlist parser v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <path|url|->\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Arguments:\n")
		fmt.Fprintf(os.Stderr, "  <path|url|->    Media playlist file, http(s) URL, or - for stdin\n")
		fmt.Fprintf(os.Stderr, "                  (optional with -serve)\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s playlist.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -format json -resolve https://example.com/vod/index.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  cat playlist.m3u8 | %s -format m3u8 -\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serve -port 8080 -name bbb playlist.m3u8\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s -serve -raft-id n1 -raft-bind 127.0.0.1:7000 -peers 127.0.0.1:7000,127.0.0.1:7001\n", os.Args[0])
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("hlsparse v%s\n", version)
		os.Exit(0)
	}

	opts := options{
		resolve:      *resolve,
		serve:        *serve,
		port:         *port,
		name:         *name,
		raftID:       *raftID,
		raftBind:     *raftBind,
		peers:        parsePeers(*peers),
		raftLogLevel: *raftLogLevel,
	}
	if flag.NArg() > 0 {
		opts.location = flag.Arg(0)
	}

	f, err := export.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}
	opts.format = f

	if err := opts.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	// Setup logger. Logs go to stderr so stdout carries only the report.
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts, os.Stdout, logger); err != nil {
		logger.Error("application error", "error", err)
		os.Exit(1)
	}
}

func (o options) validate() error {
	if !o.serve && o.location == "" {
		return errors.New("playlist path, URL or - is required")
	}

	if o.serve {
		if o.port < 1 || o.port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		if o.location != "" {
			if err := catalog.ValidateName(o.name); err != nil {
				return err
			}
		}
	}

	if o.raftID != "" && !o.serve {
		return errors.New("-raft-id requires -serve")
	}

	return nil
}

// parsePeers splits a comma-separated peer list, dropping empty elements.
func parsePeers(s string) []string {
	var peers []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			peers = append(peers, p)
		}
	}
	return peers
}

func run(ctx context.Context, opts options, stdout io.Writer, logger *slog.Logger) error {
	if opts.serve {
		return runServer(ctx, opts, logger)
	}
	return runOnce(ctx, opts, stdout, logger)
}

// runOnce loads, parses and prints a single playlist.
func runOnce(ctx context.Context, opts options, stdout io.Writer, logger *slog.Logger) error {
	if opts.resolve && opts.location == source.StdinLocation {
		return errors.New("-resolve needs a path or URL, not stdin")
	}

	loader := source.New(logger)

	pl, err := loader.LoadAndParse(ctx, opts.location)
	if err != nil {
		return err
	}

	if opts.resolve {
		pl, err = source.ResolveSegments(opts.location, pl)
		if err != nil {
			return err
		}
	}

	logger.Debug("parsed media playlist",
		"segments", len(pl.Segments),
		"discontinuities", len(pl.Discontinuities),
		"targetDuration", pl.TargetDuration,
	)

	return export.Write(stdout, pl, opts.format)
}

// runServer serves the catalog over HTTP until ctx is canceled.
func runServer(ctx context.Context, opts options, logger *slog.Logger) error {
	logger.Info("hlsparse starting", "version", version)

	var store catalog.Store = catalog.NewMemory(logger)
	var manager *cluster.Manager

	if opts.raftID != "" {
		peers := opts.peers
		if len(peers) == 0 {
			peers = []string{opts.raftBind}
		}

		m, err := cluster.NewManager(cluster.Config{
			RaftID:       opts.raftID,
			BindAddr:     opts.raftBind,
			Peers:        peers,
			RaftLogLevel: opts.raftLogLevel,
		}, os.Stderr, logger)
		if err != nil {
			return fmt.Errorf("failed to create cluster: %w", err)
		}
		if err := m.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cluster: %w", err)
		}
		defer m.Shutdown()

		waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = m.WaitForLeader(waitCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("no raft leader elected: %w", err)
		}
		logger.Info("raft leader elected", "leader", m.LeaderAddr(), "state", m.State())

		manager = m
		store = m
	}

	if opts.location != "" {
		if err := preload(ctx, store, manager, opts, logger); err != nil {
			return err
		}
	}

	srv := server.New(store, opts.port, logger)
	if manager != nil {
		srv.SetCluster(manager)
	}

	logger.Info("playlist catalog ready",
		"parse", fmt.Sprintf("http://localhost:%d/parse?name=<name>", opts.port),
		"playlists", fmt.Sprintf("http://localhost:%d/playlists", opts.port),
		"health", fmt.Sprintf("http://localhost:%d/health", opts.port),
	)

	// Start server (blocks until shutdown)
	return srv.Start(ctx)
}

// preload parses opts.location into the catalog. On a follower the write is
// skipped since only the leader can commit it.
func preload(ctx context.Context, store catalog.Store, manager *cluster.Manager, opts options, logger *slog.Logger) error {
	if manager != nil && !manager.IsLeader() {
		logger.Info("not the raft leader, skipping preload", "location", opts.location)
		return nil
	}

	pl, err := source.New(logger).LoadAndParse(ctx, opts.location)
	if err != nil {
		return err
	}
	if opts.resolve && opts.location != source.StdinLocation {
		if pl, err = source.ResolveSegments(opts.location, pl); err != nil {
			return err
		}
	}

	if err := store.Put(catalog.Entry{
		Name:     opts.name,
		Source:   opts.location,
		ParsedAt: time.Now().UTC(),
		Playlist: pl,
	}); err != nil {
		return fmt.Errorf("failed to store playlist: %w", err)
	}

	logger.Info("preloaded playlist",
		"name", opts.name,
		"segments", len(pl.Segments),
		"discontinuities", len(pl.Discontinuities),
	)
	return nil
}

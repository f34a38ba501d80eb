package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"github.com/shii9/reconkit/internal/api"
	"github.com/shii9/reconkit/internal/config"
	"github.com/shii9/reconkit/internal/probe"
	"github.com/shii9/reconkit/internal/proxy"
	"github.com/shii9/reconkit/internal/proxy/source"
	"github.com/shii9/reconkit/internal/ratelimit"
	"github.com/shii9/reconkit/internal/recon"
	"github.com/shii9/reconkit/internal/target"
	"github.com/shii9/reconkit/internal/utils"
	"github.com/shii9/reconkit/internal/utils/output"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitInterrupted = 130
)

var errColor = color.New(color.FgRed)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: reconkit <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "reconkit: batch network reconnaissance\n\n")
	fmt.Fprintf(os.Stderr, "Probe commands (targets one per line from -input):\n")
	fmt.Fprintf(os.Stderr, "  tcp       host:port lines, or hosts with -ports\n")
	fmt.Fprintf(os.Stderr, "  tls       hosts, optional :port (default 443)\n")
	fmt.Fprintf(os.Stderr, "  whois     domains\n")
	fmt.Fprintf(os.Stderr, "  proxy     [scheme://]host:port[:user:pass]\n")
	fmt.Fprintf(os.Stderr, "  headers   URLs (https assumed)\n")
	fmt.Fprintf(os.Stderr, "  dns       domains\n")
	fmt.Fprintf(os.Stderr, "  profile   profile URLs\n\n")
	fmt.Fprintf(os.Stderr, "Other commands:\n")
	fmt.Fprintf(os.Stderr, "  serve     run the HTTP API\n")
	fmt.Fprintf(os.Stderr, "  sources   fetch public proxy lists\n")
	fmt.Fprintf(os.Stderr, "  init      write a default %s\n\n", config.DefaultPath)
	fmt.Fprintf(os.Stderr, "Run 'reconkit <command> -h' for command flags.\n")
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "-h", "-help", "--help", "help":
		usage()
		return exitOK
	case "init":
		return runInit(rest)
	case "serve":
		return runServe(rest)
	case "sources":
		return runSources(rest)
	default:
		return runProbe(probe.ParseKind(cmd), rest)
	}
}

func fail(err error) int {
	errColor.Fprintf(os.Stderr, "[!] %v\n", err)
	return exitFailure
}

// setup loads config and the process logger.
func setup(path string, debug bool) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	if debug {
		cfg.Log.Debug = true
	}
	log, closer, err := utils.InitLogger(cfg.Log)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, log, closer, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runInit(args []string) int {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", config.DefaultPath, "Config file to create")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if err := config.WriteDefault(*path); err != nil {
		return fail(err)
	}
	fmt.Printf("[*] Wrote %s\n", *path)
	return exitOK
}

func runProbe(kind probe.Kind, args []string) int {
	fs := flag.NewFlagSet(string(kind), flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file")
	input := fs.String("input", "-", "Target file, one per line ('-' reads stdin)")
	concurrency := fs.Int("concurrency", 0, "Concurrent probes 1..50 (default from config)")
	timeoutMs := fs.Int("timeout", 0, "Per-probe timeout in ms 1000..10000 (default per probe)")
	ports := fs.String("ports", "", "tcp only: port range '1-1024', list '22,80,8000-8010' or 'common'")
	format := fs.String("format", output.FormatText, "Output format: text, json or yaml")
	outFile := fs.String("output", "", "Write results to file instead of stdout")
	rate := fs.Float64("rate", 0, "Max probe dispatches per second, 0 = config default")
	debug := fs.Bool("debug", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, log, closer, err := setup(*configPath, *debug)
	if err != nil {
		return fail(err)
	}
	defer closer.Close()

	reg, regCloser, err := recon.NewRegistry(*cfg, log)
	if err != nil {
		return fail(err)
	}
	defer regCloser.Close()

	if _, err := reg.Get(kind); err != nil {
		usage()
		return fail(err)
	}

	text, err := readTargets(*input)
	if err != nil {
		return fail(err)
	}

	runner := recon.NewRunner(reg, recon.Request{
		Concurrency: cfg.Scheduler.Concurrency,
		RateLimit:   cfg.Scheduler.RateLimit,
	}, log)

	ctx, cancel := signalContext()
	defer cancel()

	state, sum, err := runner.Run(ctx, recon.Request{
		Kind:        kind,
		Input:       text,
		Ports:       *ports,
		Concurrency: *concurrency,
		Timeout:     time.Duration(*timeoutMs) * time.Millisecond,
		RateLimit:   *rate,
	})
	interrupted := errors.Is(err, context.Canceled)
	if err != nil && !interrupted {
		return fail(err)
	}

	log.Info().Int("workers", sum.Workers).Int("max_in_flight", sum.MaxInFlight).
		Int("dropped", sum.Dropped).Dur("elapsed", sum.Elapsed).Msg("Run summary")

	if *outFile != "" {
		err = output.WriteToFile(state, *format, *outFile)
	} else {
		err = output.Write(os.Stdout, state, *format)
	}
	if err != nil {
		return fail(err)
	}
	if interrupted {
		return exitInterrupted
	}
	return exitOK
}

func readTargets(path string) (string, error) {
	if path == "-" {
		return target.ReadInput(os.Stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	return target.ReadInput(f)
}

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file")
	listen := fs.String("listen", "", "Listen address (default from config)")
	debug := fs.Bool("debug", false, "Debug logging")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, log, closer, err := setup(*configPath, *debug)
	if err != nil {
		return fail(err)
	}
	defer closer.Close()

	reg, regCloser, err := recon.NewRegistry(*cfg, log)
	if err != nil {
		return fail(err)
	}
	defer regCloser.Close()

	addr := cfg.API.Listen
	if *listen != "" {
		addr = *listen
	}

	runner := recon.NewRunner(reg, recon.Request{
		Concurrency: cfg.Scheduler.Concurrency,
		RateLimit:   cfg.Scheduler.RateLimit,
	}, log)
	srv := api.New(runner, ratelimit.NewStore(cfg.API.RateLimit, cfg.API.Burst), log)

	ctx, cancel := signalContext()
	defer cancel()
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fail(err)
	}
	return exitOK
}

func runSources(args []string) int {
	fs := flag.NewFlagSet("sources", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultPath, "Config file")
	outFile := fs.String("output", "", "Write proxies to file instead of stdout")
	timeout := fs.Duration("timeout", 15*time.Second, "HTTP timeout per source")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	cfg, log, closer, err := setup(*configPath, false)
	if err != nil {
		return fail(err)
	}
	defer closer.Close()

	urls := cfg.Probes.Proxy.Sources
	if len(urls) == 0 {
		urls = source.Defaults()
	}

	ctx, cancel := signalContext()
	defer cancel()

	proxies, err := proxy.FetchSources(ctx, &http.Client{Timeout: *timeout}, urls)
	if err != nil {
		return fail(err)
	}
	log.Info().Int("sources", len(urls)).Int("proxies", len(proxies)).Msg("Fetched proxy lists")

	body := strings.Join(proxies, "\n") + "\n"
	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(body), 0o644); err != nil {
			return fail(err)
		}
		fmt.Printf("[*] Wrote %d proxies to %s\n", len(proxies), *outFile)
		return exitOK
	}
	fmt.Print(body)
	return exitOK
}

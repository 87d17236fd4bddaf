// GoClearance fetches URLs through an HTTP client that answers the reverse
// proxy's "I'm Under Attack Mode" JavaScript challenge.
//
// Usage:
//
//	goclearance [flags] URL...
//
// Every flag can also be set through a CLEARANCE_-prefixed environment
// variable (CLEARANCE_PROFILE=chrome, CLEARANCE_LOG_LEVEL=debug) or a .env
// file in the working directory.  Flags override the config file.
//
// Startup sequence:
//  1. Load configuration (JSON/YAML file or defaults), then apply flags.
//  2. Initialise logger and metrics; optionally start the status server.
//  3. Build one clearance client, or one per proxy when -proxies is given.
//  4. Fetch every URL through the worker pool and print status and
//     clearance cookie.
//  5. Print a summary.  SIGINT/SIGTERM cancels in-flight fetches.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/facebookgo/flagenv"
	"github.com/go-resty/resty/v2"
	_ "github.com/joho/godotenv/autoload"

	"github.com/firasghr/GoClearance/client"
	"github.com/firasghr/GoClearance/config"
	"github.com/firasghr/GoClearance/dashboard"
	"github.com/firasghr/GoClearance/logger"
	"github.com/firasghr/GoClearance/metrics"
	"github.com/firasghr/GoClearance/proxy"
	"github.com/firasghr/GoClearance/worker"
)

var (
	configFile    = flag.String("config", "", "Path to a JSON or YAML config file (optional; uses defaults if omitted)")
	profileName   = flag.String("profile", "", "Fingerprint profile: iuam, chrome or firefox")
	engineName    = flag.String("engine", "", "Puzzle evaluator: native or otto")
	delay         = flag.Duration("delay", 0, "Wait before submitting a challenge answer")
	timeout       = flag.Duration("timeout", 0, "End-to-end timeout per URL, challenge included")
	proxyURL      = flag.String("proxy", "", "Proxy URL (scheme://host:port)")
	proxyFile     = flag.String("proxies", "", "File of proxy URLs; each proxy gets its own client and clearance")
	useHTTP2      = flag.Bool("http2", false, "Negotiate HTTP/2 (crypto/tls profiles only)")
	insecure      = flag.Bool("insecure", false, "Skip TLS certificate verification")
	logLevel      = flag.String("log-level", "", "Log level: debug, info, warn or error")
	concurrency   = flag.Int("concurrency", 4, "Number of URLs fetched in parallel")
	dashboardAddr = flag.String("dashboard", "", "Serve /metrics and the status API on this address (e.g. :9090)")
)

// fetcher pairs a clearance client with the resty front-end that drives it.
type fetcher struct {
	client *client.Client
	rest   *resty.Client
}

func main() {
	flagenv.Prefix = "CLEARANCE_"
	flagenv.Parse()
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] URL...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// ── Configuration ──────────────────────────────────────────────────────
	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.LoadConfig(*configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// ── Logger ─────────────────────────────────────────────────────────────
	level, _ := logger.ParseLevel(cfg.LogLevel)
	log := logger.New(level)
	if *configFile != "" {
		log.Infof("configuration loaded from %q", *configFile)
	}
	log.Debugf("profile=%s engine=%s delay=%s timeout=%s", cfg.Profile, cfg.Engine, cfg.Delay, cfg.RequestTimeout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Metrics and status server ──────────────────────────────────────────
	m := metrics.NewMetrics()
	if *dashboardAddr != "" {
		dash := dashboard.New(m, cfg, log)
		go func() {
			if err := dash.ListenAndServe(ctx, *dashboardAddr); err != nil {
				log.Errorf("dashboard server error: %v", err)
			}
		}()
	}

	// ── Clients ────────────────────────────────────────────────────────────
	fetchers, err := buildFetchers(cfg, log, m)
	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
	rotation := proxy.NewRotation(fetchers)
	log.Infof("%d client(s) ready, fetching %d URL(s) with %d workers", rotation.Len(), flag.NArg(), *concurrency)

	// ── Fetch ──────────────────────────────────────────────────────────────
	var failed int64
	wp := worker.NewWorkerPool(ctx, *concurrency, log)
	wp.Start()
	for _, raw := range flag.Args() {
		f := rotation.Next()
		err := wp.Submit(func(ctx context.Context) {
			if err := fetch(ctx, f, raw); err != nil {
				atomic.AddInt64(&failed, 1)
				log.Errorf("%s: %v", raw, err)
			}
		})
		if err != nil {
			log.Warnf("not fetching %s: %v", raw, err)
			atomic.AddInt64(&failed, 1)
		}
	}
	wp.Stop()

	snap := m.Snapshot()
	log.Infof("summary – requests: %d | passthrough: %d | solved: %d | unsupported: %d | failed: %d | rps: %.1f",
		snap.Total, snap.Passthrough, snap.Solved, snap.Unsupported, snap.Failed, m.RequestsPerSecond())

	if atomic.LoadInt64(&failed) > 0 {
		os.Exit(1)
	}
}

// applyFlags copies every flag that was set explicitly (on the command line
// or through the environment) into cfg.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "profile":
			cfg.Profile = *profileName
		case "engine":
			cfg.Engine = *engineName
		case "delay":
			cfg.Delay = config.Duration(*delay)
		case "timeout":
			cfg.RequestTimeout = config.Duration(*timeout)
		case "proxy":
			cfg.Proxy = *proxyURL
		case "http2":
			cfg.HTTP2 = *useHTTP2
		case "insecure":
			cfg.InsecureSkipVerify = *insecure
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
}

// buildFetchers returns one fetcher, or one per proxy listed in -proxies.
func buildFetchers(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) ([]*fetcher, error) {
	proxies := []string{cfg.Proxy}
	if *proxyFile != "" {
		loaded, err := proxy.Load(*proxyFile)
		if err != nil {
			return nil, err
		}
		if len(loaded) == 0 {
			return nil, fmt.Errorf("proxy file %q lists no proxies", *proxyFile)
		}
		log.Infof("loaded %d proxies from %q", len(loaded), *proxyFile)
		proxies = loaded
	}

	fetchers := make([]*fetcher, 0, len(proxies))
	for _, p := range proxies {
		pc := *cfg
		pc.Proxy = p
		c, err := client.NewHTTPClient(&pc, client.WithLogger(log), client.WithMetrics(m))
		if err != nil {
			return nil, err
		}
		fetchers = append(fetchers, &fetcher{client: c, rest: resty.NewWithClient(c.Client)})
	}
	return fetchers, nil
}

// fetch GETs raw and prints one tab-separated result line.
func fetch(ctx context.Context, f *fetcher, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL %q", raw)
	}
	start := time.Now()
	resp, err := f.rest.R().SetContext(ctx).Get(raw)
	if err != nil {
		return err
	}
	clearance := f.client.Clearance(u)
	if clearance == "" {
		clearance = "-"
	}
	fmt.Printf("%s\t%d\t%d bytes\t%s\tcf_clearance=%s\n",
		raw, resp.StatusCode(), len(resp.Body()), time.Since(start).Round(time.Millisecond), clearance)
	return nil
}

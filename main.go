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

	"github.com/alecthomas/kingpin/v2"
	"github.com/bpbp-boop/fping-exporter/config"
	"github.com/bpbp-boop/fping-exporter/monitor"
	"github.com/bpbp-boop/fping-exporter/probe"
	"github.com/bpbp-boop/fping-exporter/registry"
	"github.com/bpbp-boop/fping-exporter/target"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const version string = "0.1.0"

var (
	showVersion    = kingpin.Flag("version", "Print version information").Default().Bool()
	listenAddress  = kingpin.Flag("web.listen-address", "Address on which to expose metrics and web interface").Default(":9215").String()
	metricsPath    = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics").Default("/metrics").String()
	configFile     = kingpin.Flag("config.path", "Path to config file (YAML, or TOML if the name ends in .toml)").Default("").String()
	pingInterval   = kingpin.Flag("ping.interval", "Interval between two probes of the same target").Default("60s").Duration()
	pingTimeout    = kingpin.Flag("ping.timeout", "Time to wait for each ICMP echo reply").Default("500ms").Duration()
	pingCount      = kingpin.Flag("ping.count", "Number of ICMP echo requests sent to every address per probe").Default("5").Int()
	pingRetries    = kingpin.Flag("ping.retries", "Number of retries for unanswered echo requests").Default("0").Int()
	packetInterval = kingpin.Flag("ping.packet-interval", "Minimum time between two packets sent by fping to any target").Default("10ms").Duration()
	probeBackend   = kingpin.Flag("probe.backend", "Probe implementation. Valid choices: [fping, go-ping, pro-bing]").Default(probe.BackendFping).String()
	fpingPath      = kingpin.Flag("probe.fping-path", "Path to the fping executable").Default("fping").String()
	privileged     = kingpin.Flag("probe.privileged", "Use raw sockets with the pro-bing backend").Default("false").Bool()
	concurrency    = kingpin.Flag("probe.concurrency", "Addresses pinged in parallel by the go-ping and pro-bing backends").Default("64").Int()
	maxGroupSize   = kingpin.Flag("targets.max-size", "Maximum number of addresses a single target may expand to").Default("65536").Int()
	tailnet        = kingpin.Flag("tailscale.tailnet", "Add the addresses of all devices in this tailnet as targets (API key from TS_API_KEY)").Default("").String()
	logLevel       = kingpin.Flag("log.level", "Only log messages with the given severity or above. Valid levels: [debug, info, warn, error, fatal]").Default("info").String()
	rttMode        = kingpin.Flag("metrics.rttunit", "Export round trip times in seconds (default), millis, or both. Valid choices: [s, ms, both]").Default("s").String()
	targets        = kingpin.Arg("targets", "A list of targets (IP addresses or CIDR blocks) to ping").Strings()
	shutdownPeriod = 5 * time.Second
)

func main() {
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if err := setLogLevel(*logLevel); err != nil {
		kingpin.FatalUsage("%v", err)
	}

	rttMetricsScale := rttUnitFromString(*rttMode)
	if rttMetricsScale == rttInvalid {
		kingpin.FatalUsage("metrics.rttunit must be `s` for seconds, or `ms` for millis, or `both`")
	}
	log.Infof("rtt units: %#v", rttMetricsScale)

	cfg, err := loadConfig()
	if err != nil {
		kingpin.FatalUsage("could not load config.path: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *tailnet != "" {
		addrs, err := tsDiscover(ctx, *tailnet)
		if err != nil {
			log.Fatal(err)
		}
		log.Infof("Adding %d addresses from tailnet %s", len(addrs), *tailnet)
		for _, a := range addrs {
			cfg.Targets = append(cfg.Targets, config.TargetConfig{Addr: a})
		}
	}

	if len(cfg.Targets) == 0 {
		kingpin.FatalUsage("no targets specified")
	}
	if cfg.Ping.Count < 1 {
		kingpin.FatalUsage("ping.count must be greater than 0")
	}
	if cfg.Ping.Interval <= 0 {
		kingpin.FatalUsage("ping.interval must be greater than 0")
	}

	pcfg := probeConfig(cfg)

	groups, err := buildGroups(cfg)
	if err == nil {
		err = checkGroups(groups, pcfg)
	}
	if err != nil {
		log.Errorln(err)
		os.Exit(2)
	}

	prober, err := probe.New(pcfg)
	if err != nil {
		kingpin.FatalUsage("%v", err)
	}

	reg := registry.New()
	supervisor := monitor.NewSupervisor(prober, reg)
	supervisor.Start(ctx, groups)

	err = startServer(ctx, cfg, newPingCollector(reg, rttMetricsScale))
	stop()
	if err != nil {
		log.Errorln(err)
	}

	log.Infoln("Waiting for workers to stop")
	supervisor.Wait()
	if c, ok := prober.(interface{ Close() }); ok {
		c.Close()
	}

	if err != nil {
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Println("fping-exporter")
	fmt.Printf("Version: %s\n", version)
	fmt.Println("Metric exporter for fping")
}

// buildGroups expands every configured target. Any invalid target fails the
// whole configuration.
func buildGroups(cfg *config.Config) ([]target.Group, error) {
	groups := make([]target.Group, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		g, err := target.NewGroup(t.Addr, t.IntervalOr(cfg.Ping.Interval.Duration()), cfg.MaxGroupSize)
		if err != nil {
			return nil, fmt.Errorf("cannot start monitoring: %w", err)
		}
		groups = append(groups, g)
	}

	return groups, nil
}

// checkGroups rejects groups whose probe may not finish within their
// interval. Such a probe would be cut short on every cycle.
func checkGroups(groups []target.Group, pcfg probe.Config) error {
	for _, g := range groups {
		if d := pcfg.MaxDuration(len(g.Addresses)); d > g.Interval {
			return fmt.Errorf("cannot start monitoring: probing %s (%d addresses) may take up to %s, longer than its interval of %s",
				g.Expr, len(g.Addresses), d, g.Interval)
		}
	}

	return nil
}

func probeConfig(cfg *config.Config) probe.Config {
	return probe.Config{
		Backend:    cfg.Probe.Backend,
		FpingPath:  cfg.Probe.FpingPath,
		Privileged: cfg.Probe.Privileged,
		Options: probe.Options{
			Count:          cfg.Ping.Count,
			Timeout:        cfg.Ping.Timeout.Duration(),
			Retries:        cfg.Ping.Retries,
			PacketInterval: cfg.Ping.PacketInterval.Duration(),
			Concurrency:    cfg.Probe.Concurrency,
		},
	}
}

func startServer(ctx context.Context, cfg *config.Config, collector prometheus.Collector) error {
	log.Infof("Starting fping exporter (Version: %s)", version)

	path := telemetryPath(cfg.Web.TelemetryPath)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, indexHTML, path)
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)

	l := log.New()
	l.Level = log.ErrorLevel

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:      l,
		ErrorHandling: promhttp.ContinueOnError,
	})
	mux.Handle(path, h)

	srv := &http.Server{
		Addr:              cfg.Web.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Infoln("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("could not shut down web server: %v", err)
		}
	}()

	log.Infof("Listening for %s on %s", path, cfg.Web.ListenAddress)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if *configFile == "" {
		cfg := config.Config{}
		addFlagToConfig(&cfg)

		return &cfg, nil
	}

	f, err := os.Open(*configFile)
	if err != nil {
		return nil, fmt.Errorf("cannot load config file: %w", err)
	}
	defer f.Close()

	cfg, err := config.FromFile(*configFile, f)
	if err == nil {
		addFlagToConfig(cfg)
	}

	return cfg, err
}

// addFlagToConfig updates cfg with command line flag values, unless the
// config has non-zero values.
func addFlagToConfig(cfg *config.Config) {
	for _, t := range *targets {
		cfg.Targets = append(cfg.Targets, config.TargetConfig{Addr: t})
	}
	if cfg.Web.ListenAddress == "" {
		cfg.Web.ListenAddress = *listenAddress
	}
	if cfg.Web.TelemetryPath == "" {
		cfg.Web.TelemetryPath = *metricsPath
	}
	if cfg.Ping.Interval == 0 {
		cfg.Ping.Interval.Set(*pingInterval)
	}
	if cfg.Ping.Timeout == 0 {
		cfg.Ping.Timeout.Set(*pingTimeout)
	}
	if cfg.Ping.Count == 0 {
		cfg.Ping.Count = *pingCount
	}
	if cfg.Ping.Retries == 0 {
		cfg.Ping.Retries = *pingRetries
	}
	if cfg.Ping.PacketInterval == 0 {
		cfg.Ping.PacketInterval.Set(*packetInterval)
	}
	if cfg.Probe.Backend == "" {
		cfg.Probe.Backend = *probeBackend
	}
	if cfg.Probe.FpingPath == "" {
		cfg.Probe.FpingPath = *fpingPath
	}
	if !cfg.Probe.Privileged {
		cfg.Probe.Privileged = *privileged
	}
	if cfg.Probe.Concurrency == 0 {
		cfg.Probe.Concurrency = *concurrency
	}
	if cfg.MaxGroupSize == 0 {
		cfg.MaxGroupSize = *maxGroupSize
	}
}

const indexHTML = `<!doctype html>
<html>
<head>
	<meta charset="UTF-8">
	<title>fping Exporter (Version ` + version + `)</title>
</head>
<body>
	<h1>fping Exporter</h1>
	<p><a href="%s">Metrics</a></p>
</body>
</html>
`

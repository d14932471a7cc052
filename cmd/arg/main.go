// Command arg runs one address-hopping routing gateway (§1/§6): given a
// configuration file and the gate's own name, it loads peer key
// material, opens the capture interfaces, and drives the director loop
// until terminated.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/argnet/arg/internal/argcapture"
	"github.com/argnet/arg/internal/argconfig"
	"github.com/argnet/arg/internal/argcrypto"
	"github.com/argnet/arg/internal/argdirector"
	"github.com/argnet/arg/internal/argmetrics"
	"github.com/argnet/arg/internal/argnat"
	"github.com/argnet/arg/internal/argpeer"
	"github.com/argnet/arg/internal/argproto"
	"github.com/argnet/arg/internal/validate"
	"github.com/argnet/arg/internal/watchdog"
)

// Exit codes: 0 on clean shutdown, 1 on argument error, and a distinct
// small positive code for each startup failure class (configuration,
// key material, capture). The codes are not negated. A director that
// stops with an error before shutdown was requested also exits with
// exitConfigBad.
const (
	exitOK          = 0
	exitUsage       = 1
	exitConfigBad   = 2
	exitKeyBad      = 3
	exitCaptureFail = 4
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	if len(os.Args) != 2 && len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <conf path> [<gate name>]\n", os.Args[0])
		os.Exit(exitUsage)
	}

	confPath := os.Args[1]
	var gateNameOverride string
	if len(os.Args) == 3 {
		gateNameOverride = os.Args[2]
	}

	os.Exit(run(log, confPath, gateNameOverride))
}

func run(log *slog.Logger, confPath, gateNameOverride string) int {
	cfg, err := argconfig.LoadGatewayConfig(confPath)
	if err != nil {
		log.Error("unable to read main configuration", "path", confPath, "err", err)
		return exitConfigBad
	}
	gateName := cfg.GateName
	if gateNameOverride != "" {
		gateName = gateNameOverride
	}
	if err := validate.GateName(gateName); err != nil {
		log.Error("invalid gate name", "name", gateName, "err", err)
		return exitConfigBad
	}
	if err := validate.DeviceName(cfg.InternalDevice); err != nil {
		log.Error("invalid internal device name", "err", err)
		return exitConfigBad
	}
	if err := validate.DeviceName(cfg.ExternalDevice); err != nil {
		log.Error("invalid external device name", "err", err)
		return exitConfigBad
	}

	overlay, err := argconfig.LoadDebugOverlay(confPath)
	if err != nil {
		log.Error("unable to read debug overlay", "err", err)
		return exitConfigBad
	}
	if overlay.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(overlay.LogLevel)); err == nil {
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			slog.SetDefault(log)
		}
	}

	registry, self, err := loadRegistry(cfg.Dir, gateName)
	if err != nil {
		log.Error("unable to load peer key material", "err", err)
		return exitKeyBad
	}

	suite := argcrypto.StdSuite{}
	nat := argnat.New()
	engine := argproto.New(suite, self, nil, log)
	engine.DefaultHopInterval = cfg.HopRateMillis
	capture, err := argcapture.Open(cfg.InternalDevice, cfg.ExternalDevice)
	if err != nil {
		log.Error("unable to open capture interfaces", "err", err)
		return exitCaptureFail
	}

	director := argdirector.New(self, registry, nat, engine, capture, suite, log)
	engine.Sender = director

	metrics := argmetrics.New()
	director.Metrics = metrics

	var shuttingDown atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		shuttingDown.Store(true)
		cancel()
	}()

	if overlay.MetricsEnabled {
		listen := overlay.MetricsListen
		if listen == "" {
			listen = "127.0.0.1:9253"
		}
		metricsSrv := &http.Server{Addr: listen, Handler: metrics.Handler()}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				log.Warn("error shutting down metrics listener", "err", err)
			}
		}()
		go func() {
			log.Info("metrics listening", "addr", listen)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics listener stopped", "err", err)
			}
		}()
	}

	watchdogCtx, stopWatchdog := context.WithCancel(ctx)
	defer stopWatchdog()
	go watchdog.Run(watchdogCtx, watchdog.Config{}, []watchdog.HealthCheck{
		{Name: "nat_table", Check: func() error { _ = nat.EntryCount(); return nil }},
	})
	watchdog.Ready()

	log.Info("gateway running", "gate", gateName, "internal", cfg.InternalDevice, "external", cfg.ExternalDevice)
	runErr := director.Run(ctx)

	watchdog.Stopping()
	// Ordered teardown per §9's redesign note: director first (so no new
	// work is dispatched), then NAT, then the hopper's crypto primitives.
	// Only the capture interfaces hold OS resources to release; the NAT
	// table, hopper, and crypto façade are stateless Go values with
	// nothing to unwind.
	if err := capture.Close(); err != nil {
		log.Warn("error closing capture interfaces", "err", err)
	}

	if runErr != nil && !shuttingDown.Load() {
		log.Error("director stopped unexpectedly", "err", runErr)
		return exitConfigBad
	}
	return exitOK
}

// loadRegistry discovers every "<name>.pub" file alongside the config,
// loads each as a Peer, and attaches the private key for selfName.
func loadRegistry(dir, selfName string) (*argpeer.Registry, *argpeer.Peer, error) {
	names, err := argconfig.DiscoverPeerNames(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("discover peer keys: %w", err)
	}

	registry := argpeer.NewRegistry()
	var self *argpeer.Peer
	for _, name := range names {
		pub, base, mask, err := argconfig.LoadPeerPublicKey(dir, name)
		if err != nil {
			return nil, nil, fmt.Errorf("load public key for %s: %w", name, err)
		}
		peer := argpeer.New(name, pub, base, mask)
		if name == selfName {
			priv, err := argconfig.LoadPeerPrivateKey(dir, name)
			if err != nil {
				return nil, nil, fmt.Errorf("load private key for %s: %w", name, err)
			}
			peer.WithPrivateKey(priv)
			self = peer
		}
		if err := registry.Add(peer); err != nil {
			return nil, nil, fmt.Errorf("add peer %s: %w", name, err)
		}
	}

	if self == nil {
		return nil, nil, fmt.Errorf("no key file found for our own gate name %q in %s", selfName, dir)
	}
	return registry, self, nil
}

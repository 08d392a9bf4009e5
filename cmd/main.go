// spenremote bridges S Pen remote events from the pen service to local consumers:
// an HTTP/websocket API, UDP subscribers, an MQTT broker and a Redis state cache.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"spenremote/internal/api"
	"spenremote/internal/autostart"
	"spenremote/internal/bridge"
	"spenremote/internal/config"
	"spenremote/internal/logging"
	"spenremote/internal/metrics"
	"spenremote/internal/network"
	"spenremote/internal/platform"
	"spenremote/internal/protocol"
	"spenremote/internal/publish"
	"spenremote/internal/store"
	"spenremote/internal/tray"
	"spenremote/pkg/spen"
)

var (
	version     = "0.1.0"
	showVer     = flag.Bool("version", false, "Show version")
	listFeats   = flag.Bool("features", false, "Print the device's pen features and exit")
	configPath  = flag.String("config", "", "Path to the config file (default: per-user config dir)")
	withTray    = flag.Bool("tray", false, "Show a system tray icon")
	subscribe   = flag.String("subscribe", "", "Subscribe to a bridge's UDP fan-out at host:port and print events")
	writeConfig = flag.Bool("write-config", false, "Write the effective configuration to the config file and exit")
	autoStart   = flag.String("autostart", "", "Install (on) or remove (off) the login entry and exit")
	clearCache  = flag.Bool("clear-cache", false, "Remove the cached pen state from Redis and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("spenremote version %s\n", version)
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if err := cfgMgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	switch {
	case *writeConfig:
		if err := cfgMgr.Save(); err != nil {
			logger.Error("failed to write config", "error", err)
			os.Exit(1)
		}
		fmt.Println(cfgMgr.Path())
	case *autoStart != "":
		if err := setAutostart(*autoStart, cfgMgr.Path()); err != nil {
			logger.Error("autostart failed", "error", err)
			os.Exit(1)
		}
	case *clearCache:
		if err := clearStateCache(cfg.Redis); err != nil {
			logger.Error("clear cache failed", "error", err)
			os.Exit(1)
		}
	case *listFeats:
		printFeatures(cfg, logger)
	case *subscribe != "":
		runSubscriber(*subscribe, logger)
	default:
		if err := runService(cfg, logger); err != nil {
			logger.Error("bridge stopped", "error", err)
			os.Exit(1)
		}
	}
}

func setAutostart(mode, cfgPath string) error {
	entry := autostart.Entry{Args: []string{"-config", cfgPath}}
	if *withTray {
		entry.Args = append(entry.Args, "-tray")
	}
	switch mode {
	case "on":
		if err := autostart.Enable(entry); err != nil {
			return err
		}
	case "off":
		if err := autostart.Disable(entry); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown autostart mode %q (want on or off)", mode)
	}
	path, _ := entry.Path()
	fmt.Printf("autostart %s: %s\n", mode, path)
	return nil
}

func selectPlatform(cfg config.Config, logger *slog.Logger) (spen.Platform, spen.CapabilityQuery) {
	return platform.Select(platform.Device{
		Kind:           platform.Kind(cfg.Device.Kind),
		Brand:          cfg.Device.Brand,
		Manufacturer:   cfg.Device.Manufacturer,
		Packages:       cfg.Device.Packages,
		SystemFeatures: cfg.Device.SystemFeatures,
		Capabilities:   cfg.Device.Capabilities,
		CapabilityProp: cfg.Device.CapabilityProp,
	}, logger)
}

func printFeatures(cfg config.Config, logger *slog.Logger) {
	_, caps := selectPlatform(cfg, logger)
	probe := spen.NewFeatureProbe(caps, logger)

	fmt.Println("Pen features:")
	for _, f := range spen.Features {
		mark := "no"
		if probe.IsEnabled(f) {
			mark = "yes"
		}
		fmt.Printf("  %-12s %s\n", f.String(), mark)
	}
	if raw := probe.Supported(); len(raw) > 0 {
		fmt.Printf("Reported: %s\n", strings.Join(raw, ", "))
	}
}

func runSubscriber(addr string, logger *slog.Logger) {
	recv := network.NewUDPReceiver(addr, logger)
	recv.OnRecord = func(t spen.UnitType, rec spen.EventRecord) {
		ev, err := spen.Decode(t, rec)
		if err != nil {
			logger.Warn("undecodable record", "unit", t.String(), "error", err)
			return
		}
		data, _ := json.Marshal(protocol.NoticeFor(ev))
		fmt.Println(string(data))
	}
	if err := recv.Start(3 * time.Second); err != nil {
		logger.Error("subscribe failed", "bridge", addr, "error", err)
		os.Exit(1)
	}
	defer recv.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
}

func runService(cfg config.Config, logger *slog.Logger) error {
	logger.Info("spenremote starting", "version", version, "service", cfg.Service.Address)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	transport, err := network.NewWSTransport(cfg.Service.Address, logger)
	if err != nil {
		return err
	}
	plat, caps := selectPlatform(cfg, logger)
	session, err := spen.NewSession(spen.Options{
		Transport:    transport,
		Platform:     plat,
		Capabilities: caps,
		PackageName:  cfg.Service.PackageName,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	br := bridge.New(session, bridge.Options{
		ReconnectDelay: cfg.Service.ReconnectDelay,
		Logger:         logger,
	})
	defer br.Close()

	if cfg.UDP.Enabled {
		sender := network.NewUDPSender(cfg.UDP.Listen, logger)
		sender.OnSubscribersChanged = metrics.SetUDPSubscribers
		if err := sender.Start(); err != nil {
			return fmt.Errorf("udp fan-out: %w", err)
		}
		defer sender.Stop()
		br.AddSink(bridge.UDPSink{Sender: sender})
	}

	if cfg.MQTT.Enabled {
		pub, err := dialMQTT(cfg.MQTT, logger)
		if err != nil {
			logger.Error("mqtt disabled", "error", err)
		} else {
			defer pub.Close()
			br.AddSink(pub)
		}
	}

	var history api.History
	if cfg.Redis.Enabled {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		rdb, err := store.Open(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			logger.Error("redis disabled", "error", err)
		} else {
			defer rdb.Close()
			cache := store.NewStateCache(rdb, cfg.Redis.TTL)
			logPreviousState(ctx, cache, logger)
			br.AddSink(bridge.CacheSink{Cache: cache})
			history = cache
		}
	}

	apiErr := make(chan error, 1)
	if cfg.API.Enabled {
		srv := api.NewServer(br, api.Options{
			Token:   cfg.API.Token,
			Metrics: metrics.Handler(),
			History: history,
			Logger:  logger,
		})
		br.AddSink(srv.Hub())
		go func() { apiErr <- srv.ListenAndServe(ctx, cfg.API.Listen) }()
	}

	if cfg.Service.AutoConnect {
		go func() {
			connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := br.Connect(connectCtx); err != nil {
				logger.Warn("initial connect failed", "error", err)
			}
		}()
	}

	if *withTray {
		t := tray.New(br, stop, logger)
		br.OnStateChange(t.SetState)
		go func() {
			<-ctx.Done()
			t.Stop()
		}()
		logger.Info("spenremote running in tray")
		t.Run()
		return nil
	}

	logger.Info("spenremote running, press Ctrl+C to stop")
	select {
	case <-ctx.Done():
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("api: %w", err)
		}
		<-ctx.Done()
	}
	logger.Info("shutting down")
	return nil
}

func logPreviousState(ctx context.Context, cache *store.StateCache, logger *slog.Logger) {
	prev, err := cache.State(ctx)
	if err != nil {
		logger.Warn("cached state unreadable", "error", err)
		return
	}
	if prev != nil {
		logger.Info("previous session state", "state", prev.State, "at", prev.At)
	}
}

func clearStateCache(c config.RedisConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rdb, err := store.Open(ctx, c.Addr, c.Password, c.DB)
	if err != nil {
		return err
	}
	defer rdb.Close()
	return store.NewStateCache(rdb, c.TTL).Clear(ctx)
}

func dialMQTT(c config.MQTTConfig, logger *slog.Logger) (*publish.Publisher, error) {
	prefix := strings.TrimRight(c.TopicPrefix, "/")
	will, err := publish.StatePayload(spen.StateDisconnectedUnknownReason)
	if err != nil {
		return nil, err
	}
	client, err := publish.Dial(publish.ClientOptions{
		BrokerURL:   c.BrokerURL,
		ClientID:    c.ClientID,
		Username:    c.Username,
		Password:    c.Password,
		WillTopic:   prefix + "/state",
		WillPayload: will,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return publish.NewPublisher(client, prefix, logger), nil
}

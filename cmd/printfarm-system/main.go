package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"printfarm-system/internal/app/offers"
	"printfarm-system/internal/app/simulator"
	"printfarm-system/internal/common/config"
	"printfarm-system/internal/common/logger"
)

func main() {
	mode := flag.String("mode", "", "dispatch-service | farmer-simulator")
	cfgPath := flag.String("config", "", "path to YAML config (default: auto-discover)")
	port := flag.Int("port", 0, "dispatch-service: HTTP port override")
	simName := flag.String("simulator-name", "farmer-simulator", "farmer-simulator: queue/consumer name")
	acceptRate := flag.Float64("accept-rate", 0.3, "farmer-simulator: probability a farmer accepts")
	declineRate := flag.Float64("decline-rate", 0.5, "farmer-simulator: probability a farmer declines")
	respDelay := flag.Int("response-delay", 2, "farmer-simulator: seconds before answering")
	flag.Parse()

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *cfgPath
	if path == "" {
		var err error
		if path, err = config.FindConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "no config file found; pass --config")
			os.Exit(2)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}

	switch *mode {
	case "dispatch-service":
		lg.Info("service_started", map[string]any{"service": "dispatch-service", "transport": cfg.Dispatch.Transport})
		if err := offers.Run(ctx, cfg, *port); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "farmer-simulator":
		lg.Info("service_started", map[string]any{"service": "farmer-simulator"})
		simCfg := simulator.Config{
			Name:          *simName,
			AcceptRate:    *acceptRate,
			DeclineRate:   *declineRate,
			ResponseDelay: time.Duration(*respDelay) * time.Second,
		}
		if err := simulator.Run(ctx, cfg, simCfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: dispatch-service | farmer-simulator")
		os.Exit(2)
	}
}

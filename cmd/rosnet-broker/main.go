package main

import (
	"flag"
	"net"
	"net/http"
	"os"

	"github.com/blendle/zapdriver"
	"github.com/clydemcqueen/ros-gst-bridge/internal/rosnet/grpcnet"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"gopkg.in/yaml.v3"
)

type config struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

func logger() (*zap.Logger, error) {
	if os.Getenv("APP_ENV") == "production" {
		return zapdriver.NewProduction()
	} else {
		return zap.NewDevelopment()
	}
}

func loadConfig(path string) (config, error) {
	cfg := config{Addr: ":50051", MetricsAddr: ":9090"}
	if path == "" {
		return cfg, nil
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	addr := flag.String("addr", "", "The address to listen on")
	metricsAddr := flag.String("metrics-addr", "", "The address to serve Prometheus metrics on")
	flag.Parse()

	logger, err := logger()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	lis, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		panic(err)
	}

	s := grpc.NewServer()
	grpcnet.NewBroker(logger).Register(s)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())

	go func() {
		http.Handle("/metrics", promhttp.Handler())
		zap.L().Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, nil); err != nil {
			zap.L().Warn("metrics listener stopped", zap.Error(err))
		}
	}()

	zap.L().Info("starting rosnet broker", zap.String("addr", cfg.Addr))

	if err := s.Serve(lis); err != nil {
		panic(err)
	}
}

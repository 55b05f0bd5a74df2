// Package main is the entry point for the OPC-UA edge adapter. It wires
// the dispatcher, session registry, executor, subscription manager,
// discovery service and optional MQTT bridge together and manages the
// process lifecycle, following the teacher's cmd/gateway/main.go
// composition-root shape almost line for line.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"

	opcuaadapter "github.com/nexus-edge/opcua-edge-adapter/internal/adapter/opcua"
	"github.com/nexus-edge/opcua-edge-adapter/internal/bridge/mqttbridge"
	"github.com/nexus-edge/opcua-edge-adapter/internal/config"
	"github.com/nexus-edge/opcua-edge-adapter/internal/discovery"
	"github.com/nexus-edge/opcua-edge-adapter/internal/dispatcher"
	"github.com/nexus-edge/opcua-edge-adapter/internal/domain"
	"github.com/nexus-edge/opcua-edge-adapter/internal/executor"
	"github.com/nexus-edge/opcua-edge-adapter/internal/health"
	"github.com/nexus-edge/opcua-edge-adapter/internal/message"
	"github.com/nexus-edge/opcua-edge-adapter/internal/metrics"
	"github.com/nexus-edge/opcua-edge-adapter/internal/session"
	"github.com/nexus-edge/opcua-edge-adapter/internal/subscription"
	"github.com/nexus-edge/opcua-edge-adapter/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Service.Name, cfg.Service.Version)
	logger.Info().Str("env", cfg.Service.Environment).Msg("starting edge adapter")

	metricsReg := metrics.NewRegistry()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp := dispatcher.New(logger, cfg.Adapter.WorkerPoolSize)

	breakerSettings := gobreaker.Settings{
		Name:        "opcua-session-connect",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
	}
	sessions := session.New(logger, breakerSettings)

	// The MQTT bridge is optional and only wired when a broker URL is
	// configured through the environment.
	var bridge *mqttbridge.Bridge
	if brokerURL := os.Getenv("EDGE_MQTT_BROKER_URL"); brokerURL != "" {
		bridge = mqttbridge.New(mqttbridge.Config{
			BrokerURL: brokerURL,
			ClientID:  cfg.Service.Name,
			Username:  os.Getenv("EDGE_MQTT_USERNAME"),
			Password:  os.Getenv("EDGE_MQTT_PASSWORD"),
		}, logger)
		if err := bridge.Connect(ctx); err != nil {
			logger.Error().Err(err).Msg("mqtt bridge connect failed, continuing without it")
			bridge = nil
		}
	}
	if bridge != nil {
		sessions.OnStatus(bridge.PublishStatus)
		defer bridge.Disconnect()
	}

	exec := executor.New(logger, sessions, disp)
	subMgr := subscription.New(logger, sessions, disp)

	disp.RegisterCallbacks(func(msg *message.Message) {
		if msg.Command == message.CommandSub {
			if err := subMgr.HandleSend(msg.EndpointInfo.URI, msg); err != nil {
				logger.Error().Err(err).Str("endpoint", msg.EndpointInfo.URI).Msg("subscription command failed")
			}
			return
		}
		exec.HandleSend(msg)
	}, func(msg *message.Message) {
		metricsReg.IncMessagesDispatched(messageTypeLabel(msg.Type))
		if msg.Type == message.TypeReport {
			metricsReg.IncReportsDelivered()
			if bridge != nil {
				bridge.PublishReport(msg)
			}
		}
		// The default response callback is a no-op sink: real callers
		// register their own through dispatcher.RegisterCallbacks at the
		// embedding layer. This process exposes responses only via the
		// optional MQTT bridge and the metrics below.
	})
	disp.Start()
	defer disp.Stop()

	discoverySvc := discovery.New(logger, opcuaadapter.GetEndpoints, opcuaadapter.FindServers)

	for _, ep := range cfg.Endpoints {
		entry, err := sessions.Connect(ctx, opcuaadapter.Config{
			Endpoint:       ep.URI,
			SecurityPolicy: ep.SecurityPolicy,
			SecurityMode:   ep.SecurityMode,
			Username:       ep.Username,
			Password:       ep.Password,
			SessionTimeout: cfg.Adapter.SessionTimeout,
			RequestTimeout: cfg.Adapter.RequestTimeout,
		})
		if err != nil {
			logger.Error().Err(err).Str("endpoint", ep.URI).Msg("failed to connect configured endpoint")
			continue
		}
		logger.Info().Str("endpoint", ep.URI).Time("connectedAt", entry.ConnectedAt).Msg("endpoint connected")
	}

	if cfg.Adapter.DiscoveryURL != "" {
		servers, err := discoverySvc.FindServers(ctx, cfg.Adapter.DiscoveryURL, nil, nil, domain.AppTypeServer)
		if err != nil {
			logger.Warn().Err(err).Msg("startup discovery failed")
		} else {
			logger.Info().Int("count", len(servers)).Msg("discovered servers at startup")
		}
	}

	healthChecker := health.NewChecker(health.Config{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: cfg.Service.Version,
	})
	healthChecker.AddCheck("sessions", sessions)
	if bridge != nil {
		healthChecker.AddCheck("mqtt_bridge", bridge)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthChecker.HealthHandler)
	mux.HandleFunc("/health/live", healthChecker.LivenessHandler)
	mux.HandleFunc("/health/ready", healthChecker.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	go reportQueueDepths(ctx, disp, metricsReg)
	go reportSessionGauge(ctx, sessions, metricsReg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	subMgr.Stop()
	sessions.CloseAll(shutdownCtx)

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error shutting down HTTP server")
	}

	logger.Info().Msg("edge adapter shutdown complete")
}

func messageTypeLabel(t message.Type) string {
	switch t {
	case message.TypeGeneralResponse:
		return "general_response"
	case message.TypeBrowseResponse:
		return "browse_response"
	case message.TypeReport:
		return "report"
	case message.TypeError:
		return "error"
	default:
		return "unknown"
	}
}

func reportQueueDepths(ctx context.Context, disp *dispatcher.Dispatcher, reg *metrics.Registry) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sendDepth, recvDepth := disp.QueueDepths()
			reg.SetSendQueueDepth(sendDepth)
			reg.SetRecvQueueDepth(recvDepth)
		}
	}
}

func reportSessionGauge(ctx context.Context, sessions *session.Registry, reg *metrics.Registry) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.SetSessionsConnected(sessions.Len())
		}
	}
}

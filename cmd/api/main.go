package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	adactor "github.com/berfenger/lanremote/internal/adapter/actor"
	"github.com/berfenger/lanremote/internal/adapter/companion"
	"github.com/berfenger/lanremote/internal/adapter/storage"
	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/core/actor"
	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"
	"github.com/berfenger/lanremote/internal/core/service"
	"github.com/berfenger/lanremote/internal/mdns"
	"github.com/berfenger/lanremote/internal/server"
	"github.com/berfenger/lanremote/internal/util/actorutil"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/quartz"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync()

	// persistence
	store, err := storage.Open(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		logger.Fatal("storage open failed", zap.Error(err))
	}
	defer store.Close()

	connection := service.NewServerConnection(store, logger)
	if _, err := connection.Load(); err != nil {
		logger.Fatal("server address load failed", zap.Error(err))
	}
	registry := service.NewRegistry(store, logger)
	if err := registry.Load(); err != nil {
		logger.Fatal("device registry load failed", zap.Error(err))
	}

	// delayed jobs
	jobs, err := quartz.NewStdScheduler()
	if err != nil {
		logger.Fatal("job scheduler init failed", zap.Error(err))
	}
	jobsCtx, stopJobs := context.WithCancel(context.Background())
	jobs.Start(jobsCtx)

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	services, gateway := coreServices(cfg, connection, registry, as.EventStream, logger)
	services.Jobs = jobs

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, services, as.EventStream, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		logger.Error("master actor spawn failed", zap.Error(err))
		return
	}

	apiServer := server.NewServer(*cfg, ctx, pid, server.Services{
		Registry:    registry,
		Connection:  connection,
		Gateway:     gateway,
		EventStream: as.EventStream,
	}, logger)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, done)

	err = apiServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	ctx.Stop(pid)
	stopJobs()
	jobs.Stop()
	as.Shutdown()
}

// coreServices wires the discovery, reconciliation and command paths onto the shared connection.
func coreServices(cfg *config.Config, connection *service.ServerConnection, registry *service.Registry,
	eventStream *eventstream.EventStream, logger *zap.Logger) (actor.Services, *service.Gateway) {

	httpClient := &http.Client{}
	clientFor := companion.Factory(httpClient, logger)
	client := clientFor(cfg.Companion.Port)

	var browser port.ServiceBrowser
	if cfg.Discovery.MDNSEnable {
		browser = mdns.NewBrowser(cfg.Discovery.MDNSTimeout(), logger)
	}

	prober := companion.NewStatusProber(client, cfg.Sync.ProbeTimeout(), logger)
	gateway := service.NewGateway(connection, registry, client, service.GatewayConfig{
		CommandTimeout:  cfg.Companion.CommandTimeout(),
		WakeResyncDelay: cfg.Sync.WakeResyncDelay(),
	}, func(event domain.ServerConnectionLostEvent) {
		eventStream.Publish(event)
	}, logger)

	return actor.Services{
		Locator:      service.NewScanner(clientFor, browser, logger),
		Connection:   connection,
		Registry:     registry,
		Synchronizer: service.NewStatusSynchronizer(prober, registry, cfg.Sync.Concurrency, logger),
		Gateway:      gateway,
	}, gateway
}

func initConfig() (*config.Config, error) {

	// alias PORT => LANREMOTE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("LANREMOTE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("lanremote")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check and fix base topic
	baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
	if err != nil {
		return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.BaseTopic = baseTopic

	// check and fix homeassistant discovery topic
	hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
	if err != nil {
		return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
	}
	cfg.MQTT.HADiscoveryTopic = hadBaseTopic

	// check bounds
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	if !cfg.MQTT.Enable {
		return nil
	}
	return func(eventStream *eventstream.EventStream) *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, eventStream, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("port", 8080)
	viper.SetDefault("http_log", false)

	viper.SetDefault("companion.port", 7777)
	viper.SetDefault("companion.command_timeout_millis", 5000)

	viper.SetDefault("discovery.subnet_prefix", "")
	viper.SetDefault("discovery.host_first", 2)
	viper.SetDefault("discovery.host_last", 254)
	viper.SetDefault("discovery.per_host_timeout_millis", 1000)
	viper.SetDefault("discovery.concurrency", 32)
	viper.SetDefault("discovery.probes_per_second", 0)
	viper.SetDefault("discovery.mdns_enable", false)
	viper.SetDefault("discovery.mdns_timeout_millis", 2000)
	viper.SetDefault("discovery.retry_max_interval_millis", 300000)

	viper.SetDefault("sync.interval_millis", 30000)
	viper.SetDefault("sync.probe_timeout_millis", 2500)
	viper.SetDefault("sync.concurrency", 16)
	viper.SetDefault("sync.wake_resync_delay_millis", 8000)

	viper.SetDefault("storage.driver", storage.DRIVER_FILE)
	viper.SetDefault("storage.path", "./data")

	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.host", "localhost")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.base_topic", "lanremote")
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}

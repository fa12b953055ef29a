package util

import (
	"github.com/berfenger/lanremote/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Companion: config.CompanionConfig{
			Port:                 7777,
			CommandTimeoutMillis: 1000,
		},
		Discovery: config.DiscoveryConfig{
			SubnetPrefix:           "10.254.254.",
			HostFirst:              2,
			HostLast:               4,
			PerHostTimeoutMillis:   100,
			Concurrency:            4,
			MDNSTimeoutMillis:      100,
			RetryMaxIntervalMillis: 1000,
		},
		Sync: config.SyncConfig{
			IntervalMillis:        15000,
			ProbeTimeoutMillis:    200,
			Concurrency:           4,
			WakeResyncDelayMillis: 500,
		},
		Storage: config.StorageConfig{
			Driver: "file",
			Path:   "./data",
		},
		MQTT: config.MQTTConfig{
			Host:             "localhost",
			Port:             1883,
			BaseTopic:        "lanremote",
			HADiscoveryTopic: "homeassistant",
		},
		Port: 8080,
	}
}

func TestLogger() *zap.Logger {
	return zap.Must(zap.NewDevelopment())
}

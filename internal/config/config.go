package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

const (
	MIN_SYNC_INTERVAL_MILLIS = 15000
	MAX_SYNC_INTERVAL_MILLIS = 60000
)

type Config struct {
	LogLevel  zapcore.Level
	Companion CompanionConfig `mapstructure:"companion"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Storage   StorageConfig   `mapstructure:"storage"`
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Port      uint            `mapstructure:"port"`
	HttpLog   bool            `mapstructure:"http_log"`
}

type CompanionConfig struct {
	Port                 uint
	CommandTimeoutMillis uint32 `mapstructure:"command_timeout_millis"`
}

type DiscoveryConfig struct {
	SubnetPrefix           string  `mapstructure:"subnet_prefix"`
	HostFirst              int     `mapstructure:"host_first"`
	HostLast               int     `mapstructure:"host_last"`
	PerHostTimeoutMillis   uint32  `mapstructure:"per_host_timeout_millis"`
	Concurrency            int     `mapstructure:"concurrency"`
	ProbesPerSecond        float64 `mapstructure:"probes_per_second"`
	MDNSEnable             bool    `mapstructure:"mdns_enable"`
	MDNSTimeoutMillis      uint32  `mapstructure:"mdns_timeout_millis"`
	RetryMaxIntervalMillis uint32  `mapstructure:"retry_max_interval_millis"`
}

type SyncConfig struct {
	IntervalMillis        uint32 `mapstructure:"interval_millis"`
	ProbeTimeoutMillis    uint32 `mapstructure:"probe_timeout_millis"`
	Concurrency           int    `mapstructure:"concurrency"`
	WakeResyncDelayMillis uint32 `mapstructure:"wake_resync_delay_millis"`
}

type StorageConfig struct {
	Driver string
	Path   string
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func (c CompanionConfig) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMillis) * time.Millisecond
}

func (c DiscoveryConfig) PerHostTimeout() time.Duration {
	return time.Duration(c.PerHostTimeoutMillis) * time.Millisecond
}

func (c DiscoveryConfig) MDNSTimeout() time.Duration {
	return time.Duration(c.MDNSTimeoutMillis) * time.Millisecond
}

func (c DiscoveryConfig) RetryMaxInterval() time.Duration {
	return time.Duration(c.RetryMaxIntervalMillis) * time.Millisecond
}

func (c SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMillis) * time.Millisecond
}

func (c SyncConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMillis) * time.Millisecond
}

func (c SyncConfig) WakeResyncDelay() time.Duration {
	return time.Duration(c.WakeResyncDelayMillis) * time.Millisecond
}

// Validate checks bounds that viper cannot express.
func (c Config) Validate() error {
	if c.Sync.IntervalMillis < MIN_SYNC_INTERVAL_MILLIS || c.Sync.IntervalMillis > MAX_SYNC_INTERVAL_MILLIS {
		return fmt.Errorf("config param sync.interval_millis must be within %d..%d", MIN_SYNC_INTERVAL_MILLIS, MAX_SYNC_INTERVAL_MILLIS)
	}
	if c.Sync.ProbeTimeoutMillis == 0 || c.Sync.ProbeTimeoutMillis >= c.Sync.IntervalMillis {
		return errors.New("config param sync.probe_timeout_millis must be > 0 and shorter than sync.interval_millis")
	}
	if c.Discovery.HostFirst < 0 || c.Discovery.HostLast > 255 || c.Discovery.HostFirst > c.Discovery.HostLast {
		return errors.New("config params discovery.host_first and discovery.host_last must define a range within 0..255")
	}
	if c.Discovery.PerHostTimeoutMillis == 0 {
		return errors.New("config param discovery.per_host_timeout_millis must be > 0")
	}
	if c.Discovery.ProbesPerSecond < 0 {
		return errors.New("config param discovery.probes_per_second must be >= 0")
	}
	if c.Discovery.SubnetPrefix != "" && !subnetPrefixRegexp.MatchString(c.Discovery.SubnetPrefix) {
		return errors.New("config param discovery.subnet_prefix must look like 192.168.1.")
	}
	if c.Companion.Port == 0 || c.Companion.Port > 65535 {
		return errors.New("config param companion.port must be a valid TCP port")
	}
	switch c.Storage.Driver {
	case "file", "sqlite":
	default:
		return fmt.Errorf("config param storage.driver %q must be file or sqlite", c.Storage.Driver)
	}
	return nil
}

var subnetPrefixRegexp = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.?$`)

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}

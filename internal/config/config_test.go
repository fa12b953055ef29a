package config_test

import (
	"testing"

	"github.com/berfenger/lanremote/internal/config"
	"github.com/berfenger/lanremote/internal/util"

	"github.com/stretchr/testify/assert"
)

func TestValidateDefaults(t *testing.T) {
	assert.NoError(t, util.LoadTestConfig().Validate())
}

func TestValidateSyncInterval(t *testing.T) {
	for _, interval := range []uint32{14999, 60001} {
		cfg := util.LoadTestConfig()
		cfg.Sync.IntervalMillis = interval
		assert.Error(t, cfg.Validate(), "interval %d", interval)
	}
	for _, interval := range []uint32{15000, 30000, 60000} {
		cfg := util.LoadTestConfig()
		cfg.Sync.IntervalMillis = interval
		assert.NoError(t, cfg.Validate(), "interval %d", interval)
	}
}

func TestValidateDiscoveryRange(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Discovery.HostFirst, cfg.Discovery.HostLast = 10, 5
	assert.Error(t, cfg.Validate())

	cfg = util.LoadTestConfig()
	cfg.Discovery.SubnetPrefix = "192.168"
	assert.Error(t, cfg.Validate())

	cfg = util.LoadTestConfig()
	cfg.Discovery.SubnetPrefix = "192.168.7"
	assert.NoError(t, cfg.Validate())
}

func TestValidateStorageDriver(t *testing.T) {
	cfg := util.LoadTestConfig()
	cfg.Storage.Driver = "sqlite"
	assert.NoError(t, cfg.Validate())
	cfg.Storage.Driver = "postgres"
	assert.Error(t, cfg.Validate())
}

func TestCheckMQTTTopic(t *testing.T) {
	topic, err := config.CheckMQTTTopic("LanRemote_1")
	assert.NoError(t, err)
	assert.Equal(t, "lanremote_1", topic)

	_, err = config.CheckMQTTTopic("lan/remote")
	assert.Error(t, err)
}

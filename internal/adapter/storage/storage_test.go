package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/core/port"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func openStores(t *testing.T) map[string]port.KeyValueStore {
	logger := zap.Must(zap.NewDevelopment())

	file, err := NewFileStore(t.TempDir(), logger)
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	return map[string]port.KeyValueStore{
		DRIVER_FILE:   file,
		DRIVER_SQLITE: sqlite,
	}
}

func TestStoreLoadMissingKey(t *testing.T) {
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			var ip string
			found, err := store.Load(port.STORE_KEY_SERVER_IP, &ip)
			require.NoError(t, err)
			assert.False(t, found)
			assert.Empty(t, ip)
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	devices := []domain.Device{
		{Id: "a", Name: "office", Mac: "00:11:22:33:44:55", Ip: "192.168.1.10", Status: domain.DEVICE_STATUS_ONLINE, Type: domain.DEVICE_TYPE_WIFI, Version: 3},
	}
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			require.NoError(store.Save(port.STORE_KEY_DEVICES, []domain.Device{}))
			require.NoError(store.Save(port.STORE_KEY_DEVICES, devices))

			loaded := []domain.Device{}
			found, err := store.Load(port.STORE_KEY_DEVICES, &loaded)
			require.NoError(err)
			require.True(found)
			assert.Equal(t, devices, loaded)
		})
	}
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zap.Must(zap.NewDevelopment()))
	require.NoError(t, err)
	require.NoError(t, store.Save(port.STORE_KEY_SERVER_IP, "192.168.1.42"))
	require.NoError(t, store.Save(port.STORE_KEY_SERVER_IP, "192.168.1.43"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "serverIp.json", entries[0].Name())

	_, err = store.Load("../escape", new(string))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	require := require.New(t)
	logger := zap.Must(zap.NewDevelopment())
	path := filepath.Join(t.TempDir(), "kv.db")

	store, err := NewSQLiteStore(path, logger)
	require.NoError(err)
	require.NoError(store.Save(port.STORE_KEY_ACTIVE_DEVICE, "abc"))
	require.NoError(store.Close())

	reopened, err := NewSQLiteStore(path, logger)
	require.NoError(err)
	defer reopened.Close()
	var active string
	found, err := reopened.Load(port.STORE_KEY_ACTIVE_DEVICE, &active)
	require.NoError(err)
	assert.True(t, found)
	assert.Equal(t, "abc", active)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("redis", t.TempDir(), zap.Must(zap.NewDevelopment()))
	assert.Error(t, err)
}

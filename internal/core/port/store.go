package port

// Fixed keys of the persisted state.
const (
	STORE_KEY_DEVICES       = "devices"
	STORE_KEY_SERVER_IP     = "serverIp"
	STORE_KEY_ACTIVE_DEVICE = "activeDevice"
)

// KeyValueStore persists JSON serializable values under fixed keys.
type KeyValueStore interface {
	// Load decodes the value stored under key into v. It reports false when the key was never saved.
	Load(key string, v any) (bool, error)
	Save(key string, v any) error
	Close() error
}

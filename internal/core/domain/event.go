package domain

// Events published on the actor system eventstream.

type DeviceStatusChangedEvent struct {
	Device   Device
	Previous DeviceStatus
}

// RegistryChangedEvent carries the full device list after an add, edit or delete.
type RegistryChangedEvent struct {
	Devices []Device
}

type ServerDiscoveredEvent struct {
	Address string
}

type ServerConnectionLostEvent struct {
	Address string
	Error   string
}

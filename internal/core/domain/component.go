package domain

import (
	"fmt"
	"strings"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge_state"
	SENSOR_TYPE_BINARY     = "binary_sensor"

	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CATEGORY_DIAG      = "diagnostic"
)

// ButtonActions are the power actions exposed as Home Assistant buttons.
var ButtonActions = []ActionKind{ACTION_WAKE, ACTION_SLEEP, ACTION_RESTART, ACTION_SHUTDOWN}

// HADevice is a Home Assistant device grouping entities.
type HADevice struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
	Mac          string
}

type GenericSensor struct {
	Device           HADevice
	Id               string
	SensorType       string
	Name             string
	UniqueId         string
	DeviceClass      string // connectivity
	EntityCategory   string // diagnostic, config, nil
	EnabledByDefault *bool
	Icon             string
}

type GenericButton struct {
	Device   HADevice
	Id       string
	Action   ActionKind
	Name     string
	UniqueId string
	Icon     string
}

func BridgeDevice(baseTopic string) HADevice {
	return HADevice{
		Id:           fmt.Sprintf("%s_bridge", baseTopic),
		Name:         "LAN Remote Bridge",
		Version:      versioninfo.Short(),
		Model:        "lanremote",
		Manufacturer: "lanremote",
	}
}

func BridgeSensors(bridge HADevice) []GenericSensor {
	return []GenericSensor{
		{
			Device:         bridge,
			Id:             SENSOR_ID_BRIDGE_STATE,
			SensorType:     SENSOR_TYPE_BINARY,
			Name:           "Connection state",
			UniqueId:       fmt.Sprintf("%s_%s", bridge.Id, SENSOR_ID_BRIDGE_STATE),
			DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
			EntityCategory: ENTITY_CATEGORY_DIAG,
		},
	}
}

// ComputerDevice groups the entities of one registry device under the bridge.
func ComputerDevice(d Device, bridge HADevice) HADevice {
	return HADevice{
		Id:           d.Id,
		Name:         d.Name,
		Model:        string(d.Type),
		Manufacturer: "lanremote",
		ViaDevice:    bridge.Id,
		Mac:          strings.ToLower(d.Mac),
	}
}

func ComputerSensor(dev HADevice) GenericSensor {
	return GenericSensor{
		Device:      dev,
		Id:          dev.Id,
		SensorType:  SENSOR_TYPE_BINARY,
		Name:        "Online",
		UniqueId:    fmt.Sprintf("%s_online", dev.Id),
		DeviceClass: DEVICE_CLASS_CONNECTIVITY,
	}
}

func ComputerButtons(dev HADevice) []GenericButton {
	icons := map[ActionKind]string{
		ACTION_WAKE:     "mdi:power",
		ACTION_SLEEP:    "mdi:power-sleep",
		ACTION_RESTART:  "mdi:restart",
		ACTION_SHUTDOWN: "mdi:power-off",
	}
	buttons := make([]GenericButton, 0, len(ButtonActions))
	for _, action := range ButtonActions {
		id := fmt.Sprintf("%s_%s", dev.Id, action)
		buttons = append(buttons, GenericButton{
			Device:   dev,
			Id:       id,
			Action:   action,
			Name:     strings.ToUpper(string(action[:1])) + string(action[1:]),
			UniqueId: id,
			Icon:     icons[action],
		})
	}
	return buttons
}

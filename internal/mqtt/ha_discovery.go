package mqtt

import (
	"fmt"

	"github.com/berfenger/lanremote/internal/core/domain"
)

type HADiscoveryConfig struct {
	Device           HADiscoveryDevice `json:"device"`
	StateTopic       string            `json:"state_topic,omitempty"`
	CommandTopic     string            `json:"command_topic,omitempty"`
	DeviceClass      string            `json:"device_class,omitempty"`
	AvTopic          string            `json:"availability_topic,omitempty"`
	EntityCategory   string            `json:"entity_category,omitempty"`
	Name             string            `json:"name"`
	UniqueId         string            `json:"unique_id"`
	Platform         string            `json:"platform"`
	EnabledByDefault *bool             `json:"enabled_by_default,omitempty"`
	PayloadOn        string            `json:"payload_on,omitempty"`
	PayloadOff       string            `json:"payload_off,omitempty"`
	PayloadPress     string            `json:"payload_press,omitempty"`
	Icon             string            `json:"icon,omitempty"`
}

type HADiscoveryDevice struct {
	Id           []string   `json:"identifiers"`
	Manufacturer string     `json:"manufacturer,omitempty"`
	Version      string     `json:"sw_version,omitempty"`
	Model        string     `json:"model,omitempty"`
	Name         string     `json:"name,omitempty"`
	ViaDevice    string     `json:"via_device,omitempty"`
	Connections  [][]string `json:"connections,omitempty"`
}

func (c *MQTTClient) HADiscoverySensorTopic(sensor domain.GenericSensor) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", c.discoveryPrefix(), sensor.SensorType, sensor.Device.Id, sensor.Id)
}

func (c *MQTTClient) HADiscoveryButtonTopic(button domain.GenericButton) string {
	return fmt.Sprintf("%s/button/%s/%s/config", c.discoveryPrefix(), button.Device.Id, button.Id)
}

func GenericSensorToHADiscoveryMessage(client *MQTTClient, sensor domain.GenericSensor) HADiscoveryConfig {
	disConfig := HADiscoveryConfig{
		Device:           device(sensor.Device),
		DeviceClass:      sensor.DeviceClass,
		EntityCategory:   sensor.EntityCategory,
		Name:             sensor.Name,
		UniqueId:         sensor.UniqueId,
		Icon:             sensor.Icon,
		EnabledByDefault: sensor.EnabledByDefault,
		Platform:         "mqtt",
	}
	if sensor.Id == domain.SENSOR_ID_BRIDGE_STATE {
		disConfig.StateTopic = client.BridgeStateTopic()
		disConfig.PayloadOn = MQTT_PAYLOAD_ONLINE
		disConfig.PayloadOff = MQTT_PAYLOAD_OFFLINE
	} else {
		disConfig.StateTopic = client.BinarySensorStateTopic(sensor.Id)
		disConfig.AvTopic = client.BridgeStateTopic()
		disConfig.PayloadOn = MQTT_PAYLOAD_ON
		disConfig.PayloadOff = MQTT_PAYLOAD_OFF
	}
	return disConfig
}

func GenericButtonToHADiscoveryMessage(client *MQTTClient, button domain.GenericButton) HADiscoveryConfig {
	return HADiscoveryConfig{
		Device:       device(button.Device),
		CommandTopic: client.ButtonPressTopic(button.Device.Id, string(button.Action)),
		AvTopic:      client.BridgeStateTopic(),
		Name:         button.Name,
		UniqueId:     button.UniqueId,
		Icon:         button.Icon,
		Platform:     "mqtt",
		PayloadPress: MQTT_PAYLOAD_PRESS,
	}
}

func device(d domain.HADevice) HADiscoveryDevice {
	var connections [][]string
	if d.Mac != "" {
		connections = [][]string{{"mac", d.Mac}}
	}
	return HADiscoveryDevice{
		Connections:  connections,
		Id:           []string{d.Id},
		Manufacturer: d.Manufacturer,
		Version:      d.Version,
		Model:        d.Model,
		Name:         d.Name,
		ViaDevice:    d.ViaDevice,
	}
}

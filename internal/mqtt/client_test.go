package mqtt

import (
	"encoding/json"
	"testing"

	"github.com/berfenger/lanremote/internal/core/domain"
	"github.com/berfenger/lanremote/internal/util"

	"github.com/stretchr/testify/assert"
)

const testDeviceId = "3f1b2c4d-5e6f-4a1b-8c9d-0e1f2a3b4c5d"

func testClient() *MQTTClient {
	cfg := util.LoadTestConfig()
	cfg.MQTT.BaseTopic = "loremTopic"
	return CreateMQTTClient(&cfg, OptsFromConfig(&cfg), nil, nil)
}

func TestButtonPressParse(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	cmd, err := c.parseButtonPress("loremTopic/button/"+testDeviceId+"_shutdown/press", MQTT_PAYLOAD_PRESS)

	assert.NoError(err)
	assert.Equal(testDeviceId, cmd.DeviceId, "device extract")
	assert.Equal("shutdown", cmd.Param, "action extract")
	assert.Equal(COMMAND_BUTTON_PRESS, cmd.Command)
}

func TestButtonPressParseFail(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	for _, topic := range []string{
		"loremTopic/button/" + testDeviceId + "_shutdown/state",
		"loremTopic/button/" + testDeviceId + "_format/press",
		"otherTopic/button/" + testDeviceId + "_wake/press",
		"loremTopic/switch/" + testDeviceId + "/command",
	} {
		_, err := c.parseButtonPress(topic, MQTT_PAYLOAD_PRESS)
		assert.ErrorIs(err, ErrInvalidCommand, topic)
	}
}

func TestButtonTopicRoundTrip(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	for _, action := range domain.ButtonActions {
		cmd, err := c.parseButtonPress(c.ButtonPressTopic(testDeviceId, string(action)), MQTT_PAYLOAD_PRESS)
		assert.NoError(err)
		assert.Equal(string(action), cmd.Param)
	}
}

func TestHADiscoveryMessages(t *testing.T) {

	assert := assert.New(t)

	c := testClient()
	bridge := domain.BridgeDevice("loremTopic")
	dev := domain.ComputerDevice(domain.Device{
		Id:   testDeviceId,
		Name: "office",
		Mac:  "00:1A:2B:3C:4D:5E",
		Type: domain.DEVICE_TYPE_WIFI,
	}, bridge)

	sensor := domain.ComputerSensor(dev)
	assert.Equal("homeassistant/binary_sensor/"+testDeviceId+"/"+testDeviceId+"/config", c.HADiscoverySensorTopic(sensor))
	msg := GenericSensorToHADiscoveryMessage(c, sensor)
	assert.Equal("loremTopic/binary_sensor/"+testDeviceId+"/state", msg.StateTopic)
	assert.Equal("loremTopic/bridge/state", msg.AvTopic)
	assert.Equal(MQTT_PAYLOAD_ON, msg.PayloadOn)

	payload, err := json.Marshal(msg)
	assert.NoError(err)
	assert.Contains(string(payload), `"connections":[["mac","00:1a:2b:3c:4d:5e"]]`)
	assert.Contains(string(payload), `"via_device":"loremTopic_bridge"`)

	buttons := domain.ComputerButtons(dev)
	assert.Len(buttons, 4)
	bmsg := GenericButtonToHADiscoveryMessage(c, buttons[0])
	assert.Equal("loremTopic/button/"+testDeviceId+"_wake/press", bmsg.CommandTopic)
	assert.Equal(MQTT_PAYLOAD_PRESS, bmsg.PayloadPress)
	assert.Equal("homeassistant/button/"+testDeviceId+"/"+testDeviceId+"_wake/config", c.HADiscoveryButtonTopic(buttons[0]))

	bridgeMsg := GenericSensorToHADiscoveryMessage(c, domain.BridgeSensors(bridge)[0])
	assert.Equal("loremTopic/bridge/state", bridgeMsg.StateTopic)
	assert.Equal(MQTT_PAYLOAD_ONLINE, bridgeMsg.PayloadOn)
	assert.Empty(bridgeMsg.AvTopic)
}

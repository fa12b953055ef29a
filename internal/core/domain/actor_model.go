package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_DISCOVERY    = "discovery"
	ACTOR_ID_SYNC         = "sync"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// DiscoverRequest starts a server scan, or joins the one in flight.
type DiscoverRequest struct {
	ActorRequestMixIn
}

type DiscoverResponse struct {
	ActorResponseMixIn
	Address string
	Found   bool
}

// SyncNowRequest forces a reconciliation cycle.
type SyncNowRequest struct {
	ActorRequestMixIn
}

type SyncNowResponse struct {
	ActorResponseMixIn
	Changed []Device
}

// ScheduleResyncRequest asks for a SyncNowRequest after Delay milliseconds.
type ScheduleResyncRequest struct {
	ActorRequestMixIn
	DelayMillis uint32
}

type DispatchRequest struct {
	ActorRequestMixIn
	DeviceId string
	Action   Action
}

type DispatchResponse struct {
	ActorResponseMixIn
	Success bool
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

// PublishDiscoveryRequest publishes Home Assistant entities and the current state of Devices.
type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
	Devices []Device
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}

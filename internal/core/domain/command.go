package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Public action names, as sent by the UI and the MQTT bridge.
type ActionKind string

const (
	ACTION_WAKE         ActionKind = "wake"
	ACTION_SLEEP        ActionKind = "sleep"
	ACTION_RESTART      ActionKind = "restart"
	ACTION_SHUTDOWN     ActionKind = "shutdown"
	ACTION_LOGOFF       ActionKind = "logoff"
	ACTION_MOUSE_MOVE   ActionKind = "move"
	ACTION_LEFT_CLICK   ActionKind = "leftClick"
	ACTION_RIGHT_CLICK  ActionKind = "rightClick"
	ACTION_DOUBLE_CLICK ActionKind = "doubleClick"
	ACTION_SCROLL_UP    ActionKind = "scrollUp"
	ACTION_SCROLL_DOWN  ActionKind = "scrollDown"
	ACTION_KEY_PRESS    ActionKind = "key_press"
	ACTION_TEXT_INPUT   ActionKind = "text_input"
	ACTION_PLAY         ActionKind = "play"
	ACTION_PAUSE        ActionKind = "pause"
	ACTION_NEXT         ActionKind = "next"
	ACTION_PREVIOUS     ActionKind = "previous"
	ACTION_FULLSCREEN   ActionKind = "fullscreen"
	ACTION_VOLUME_UP    ActionKind = "volume_up"
	ACTION_VOLUME_DOWN  ActionKind = "volume_down"
	ACTION_MUTE         ActionKind = "mute"
)

// Wire command names understood by the companion server.
const (
	WIRE_CMD_WAKE             = "wake"
	WIRE_CMD_SLEEP            = "sleep"
	WIRE_CMD_RESTART          = "restart"
	WIRE_CMD_SHUTDOWN         = "shutdown"
	WIRE_CMD_LOGOFF           = "logoff"
	WIRE_CMD_MOUSE_MOVE       = "mouse_move"
	WIRE_CMD_MOUSE_CLICK      = "mouse_click"
	WIRE_CMD_MOUSE_SCROLL     = "mouse_scroll"
	WIRE_CMD_KEY_PRESS        = "key_press"
	WIRE_CMD_TEXT_INPUT       = "text_input"
	WIRE_CMD_MEDIA_PLAY_PAUSE = "media_play_pause"
	WIRE_CMD_MEDIA_NEXT       = "media_next"
	WIRE_CMD_MEDIA_PREV       = "media_prev"
	WIRE_CMD_VOLUME_UP        = "volume_up"
	WIRE_CMD_VOLUME_DOWN      = "volume_down"
	WIRE_CMD_VOLUME_MUTE      = "volume_mute"
	WIRE_CMD_GET_DEVICES      = "get_devices"
	WIRE_CMD_ADD_DEVICE       = "add_device"
	WIRE_CMD_REMOVE_DEVICE    = "remove_device"
	WIRE_CMD_GET_STATUS       = "get_status"
)

const (
	MOUSE_BUTTON_LEFT  = "left"
	MOUSE_BUTTON_RIGHT = "right"
	SCROLL_UP          = "up"
	SCROLL_DOWN        = "down"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrInvalidParams = errors.New("invalid action parameters")
)

// CommandEnvelope is the unit POSTed to the companion server.
type CommandEnvelope struct {
	Command string         `json:"command"`
	Params  map[string]any `json:"params"`
}

func NewEnvelope(command string, params map[string]any) CommandEnvelope {
	if params == nil {
		params = map[string]any{}
	}
	return CommandEnvelope{
		Command: command,
		Params:  params,
	}
}

// Action

// Action is closed over the types declared in this file.
type Action interface {
	Kind() ActionKind
	action()
}

type actionMixIn struct{}

func (actionMixIn) action() {}

type WakeAction struct {
	actionMixIn
}

// PowerAction covers sleep, restart, shutdown and logoff.
type PowerAction struct {
	actionMixIn
	Op ActionKind
}

type MouseMoveAction struct {
	actionMixIn
	DeltaX float64
	DeltaY float64
}

type MouseClickAction struct {
	actionMixIn
	Button string
	Double bool
}

type MouseScrollAction struct {
	actionMixIn
	Direction string
}

type KeyPressAction struct {
	actionMixIn
	Key string
}

type TextInputAction struct {
	actionMixIn
	Text string
}

// MediaAction covers play, pause, next, previous and fullscreen.
type MediaAction struct {
	actionMixIn
	Op ActionKind
}

// VolumeAction covers volume_up, volume_down and mute.
type VolumeAction struct {
	actionMixIn
	Op ActionKind
}

func (WakeAction) Kind() ActionKind      { return ACTION_WAKE }
func (a PowerAction) Kind() ActionKind   { return a.Op }
func (MouseMoveAction) Kind() ActionKind { return ACTION_MOUSE_MOVE }
func (KeyPressAction) Kind() ActionKind  { return ACTION_KEY_PRESS }
func (TextInputAction) Kind() ActionKind { return ACTION_TEXT_INPUT }
func (a MediaAction) Kind() ActionKind   { return a.Op }
func (a VolumeAction) Kind() ActionKind  { return a.Op }
func (a MouseScrollAction) Kind() ActionKind {
	if a.Direction == SCROLL_UP {
		return ACTION_SCROLL_UP
	}
	return ACTION_SCROLL_DOWN
}

func (a MouseClickAction) Kind() ActionKind {
	switch {
	case a.Double:
		return ACTION_DOUBLE_CLICK
	case a.Button == MOUSE_BUTTON_RIGHT:
		return ACTION_RIGHT_CLICK
	default:
		return ACTION_LEFT_CLICK
	}
}

// ActionEffect tells callers how an action changes device reachability.
type ActionEffect int

const (
	EFFECT_NONE ActionEffect = iota
	EFFECT_POWER_UP
	EFFECT_POWER_DOWN
)

func EffectOf(action Action) ActionEffect {
	switch action.(type) {
	case WakeAction:
		return EFFECT_POWER_UP
	case PowerAction:
		return EFFECT_POWER_DOWN
	default:
		return EFFECT_NONE
	}
}

// ParseAction turns a public action name and its loose parameters into an Action.
func ParseAction(name string, params map[string]any) (Action, error) {
	switch ActionKind(name) {
	case ACTION_WAKE:
		return WakeAction{}, nil
	case ACTION_SLEEP, ACTION_RESTART, ACTION_SHUTDOWN, ACTION_LOGOFF:
		return PowerAction{Op: ActionKind(name)}, nil
	case ACTION_MOUSE_MOVE:
		dx, err := floatParam(params, "deltaX")
		if err != nil {
			return nil, err
		}
		dy, err := floatParam(params, "deltaY")
		if err != nil {
			return nil, err
		}
		return MouseMoveAction{DeltaX: dx, DeltaY: dy}, nil
	case ACTION_LEFT_CLICK:
		return MouseClickAction{Button: MOUSE_BUTTON_LEFT}, nil
	case ACTION_RIGHT_CLICK:
		return MouseClickAction{Button: MOUSE_BUTTON_RIGHT}, nil
	case ACTION_DOUBLE_CLICK:
		return MouseClickAction{Button: MOUSE_BUTTON_LEFT, Double: true}, nil
	case ACTION_SCROLL_UP:
		return MouseScrollAction{Direction: SCROLL_UP}, nil
	case ACTION_SCROLL_DOWN:
		return MouseScrollAction{Direction: SCROLL_DOWN}, nil
	case ACTION_KEY_PRESS:
		key, err := stringParam(params, "key")
		if err != nil {
			return nil, err
		}
		return KeyPressAction{Key: key}, nil
	case ACTION_TEXT_INPUT:
		text, err := stringParam(params, "text")
		if err != nil {
			return nil, err
		}
		return TextInputAction{Text: text}, nil
	case ACTION_PLAY, ACTION_PAUSE, ACTION_NEXT, ACTION_PREVIOUS, ACTION_FULLSCREEN:
		return MediaAction{Op: ActionKind(name)}, nil
	case ACTION_VOLUME_UP, ACTION_VOLUME_DOWN, ACTION_MUTE:
		return VolumeAction{Op: ActionKind(name)}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// BuildEnvelope is the only place where actions become wire commands.
// Every envelope carries the target's id and network address.
func BuildEnvelope(action Action, target Device) (CommandEnvelope, error) {
	params := map[string]any{
		"deviceId": target.Id,
		"ip":       target.Ip,
	}
	switch a := action.(type) {
	case WakeAction:
		params["mac"] = target.Mac
		return NewEnvelope(WIRE_CMD_WAKE, params), nil
	case PowerAction:
		switch a.Op {
		case ACTION_SLEEP:
			return NewEnvelope(WIRE_CMD_SLEEP, params), nil
		case ACTION_RESTART:
			return NewEnvelope(WIRE_CMD_RESTART, params), nil
		case ACTION_SHUTDOWN:
			return NewEnvelope(WIRE_CMD_SHUTDOWN, params), nil
		case ACTION_LOGOFF:
			return NewEnvelope(WIRE_CMD_LOGOFF, params), nil
		}
	case MouseMoveAction:
		params["deltaX"] = a.DeltaX
		params["deltaY"] = a.DeltaY
		return NewEnvelope(WIRE_CMD_MOUSE_MOVE, params), nil
	case MouseClickAction:
		params["button"] = a.Button
		if a.Double {
			params["double"] = true
		}
		return NewEnvelope(WIRE_CMD_MOUSE_CLICK, params), nil
	case MouseScrollAction:
		params["direction"] = a.Direction
		return NewEnvelope(WIRE_CMD_MOUSE_SCROLL, params), nil
	case KeyPressAction:
		params["key"] = a.Key
		return NewEnvelope(WIRE_CMD_KEY_PRESS, params), nil
	case TextInputAction:
		params["text"] = a.Text
		return NewEnvelope(WIRE_CMD_TEXT_INPUT, params), nil
	case MediaAction:
		switch a.Op {
		case ACTION_PLAY, ACTION_PAUSE:
			return NewEnvelope(WIRE_CMD_MEDIA_PLAY_PAUSE, params), nil
		case ACTION_NEXT:
			return NewEnvelope(WIRE_CMD_MEDIA_NEXT, params), nil
		case ACTION_PREVIOUS:
			return NewEnvelope(WIRE_CMD_MEDIA_PREV, params), nil
		case ACTION_FULLSCREEN:
			// no dedicated wire command, the server toggles fullscreen with "f"
			params["key"] = "f"
			return NewEnvelope(WIRE_CMD_KEY_PRESS, params), nil
		}
	case VolumeAction:
		switch a.Op {
		case ACTION_VOLUME_UP:
			return NewEnvelope(WIRE_CMD_VOLUME_UP, params), nil
		case ACTION_VOLUME_DOWN:
			return NewEnvelope(WIRE_CMD_VOLUME_DOWN, params), nil
		case ACTION_MUTE:
			return NewEnvelope(WIRE_CMD_VOLUME_MUTE, params), nil
		}
	}
	return CommandEnvelope{}, fmt.Errorf("%w: %T", ErrUnknownAction, action)
}

func floatParam(params map[string]any, name string) (float64, error) {
	raw, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParams, name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, name)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %s must be a number", ErrInvalidParams, name)
}

func stringParam(params map[string]any, name string) (string, error) {
	raw, ok := params[name]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParams, name)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("%w: %s must be a non empty string", ErrInvalidParams, name)
	}
	return s, nil
}

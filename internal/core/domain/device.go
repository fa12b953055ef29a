package domain

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type DeviceStatus string

const (
	DEVICE_STATUS_ONLINE  DeviceStatus = "online"
	DEVICE_STATUS_OFFLINE DeviceStatus = "offline"
)

type DeviceType string

const (
	DEVICE_TYPE_WIFI      DeviceType = "wifi"
	DEVICE_TYPE_BLUETOOTH DeviceType = "bluetooth"
)

var (
	ErrValidation = errors.New("invalid device")

	macRegexp  = regexp.MustCompile(`^([0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$`)
	ipv4Regexp = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
)

// Device is one controllable computer. Status is owned by the status synchronizer.
type Device struct {
	Id      string       `json:"id"`
	Name    string       `json:"name"`
	Mac     string       `json:"mac"`
	Ip      string       `json:"ip"`
	Status  DeviceStatus `json:"status"`
	Type    DeviceType   `json:"type"`
	Version uint64       `json:"version"`
}

// DevicePatch holds the user editable fields. Nil fields are left untouched.
type DevicePatch struct {
	Name *string `json:"name,omitempty"`
	Mac  *string `json:"mac,omitempty"`
	Ip   *string `json:"ip,omitempty"`
}

func (d Device) IsOnline() bool {
	return d.Status == DEVICE_STATUS_ONLINE
}

// SameMac compares hardware addresses ignoring case.
func (d Device) SameMac(mac string) bool {
	return strings.EqualFold(d.Mac, mac)
}

func (p DevicePatch) Apply(d Device) Device {
	if p.Name != nil {
		d.Name = strings.TrimSpace(*p.Name)
	}
	if p.Mac != nil {
		d.Mac = strings.TrimSpace(*p.Mac)
	}
	if p.Ip != nil {
		d.Ip = strings.TrimSpace(*p.Ip)
	}
	return d
}

func ValidateDevice(d Device) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := ValidateMac(d.Mac); err != nil {
		return err
	}
	return ValidateIPv4(d.Ip)
}

func ValidateMac(mac string) error {
	if !macRegexp.MatchString(mac) {
		return fmt.Errorf("%w: hardware address %q must be six colon separated hex pairs", ErrValidation, mac)
	}
	return nil
}

// ValidateIPv4 accepts dotted quads whose octets are within 0-255.
func ValidateIPv4(ip string) error {
	if !ipv4Regexp.MatchString(ip) {
		return fmt.Errorf("%w: network address %q is not a dotted quad", ErrValidation, ip)
	}
	for _, octet := range strings.Split(ip, ".") {
		value, err := strconv.Atoi(octet)
		if err != nil || value > 255 {
			return fmt.Errorf("%w: network address %q has an octet out of range", ErrValidation, ip)
		}
	}
	return nil
}

// DeviceTypeFromMac mirrors the app's rule of thumb for new devices.
func DeviceTypeFromMac(mac string) DeviceType {
	if strings.HasPrefix(mac, "00:") {
		return DEVICE_TYPE_WIFI
	}
	return DEVICE_TYPE_BLUETOOTH
}

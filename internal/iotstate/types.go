// Package iotstate implements the IoT device-state skill: it scores
// incoming intents by keyword, queries the time-series store for the
// latest reading per device, and renders the result as speech.
package iotstate

import (
	"strings"
	"time"
)

// DeviceType is a device category as identified in the time-series
// store's device_type column.
type DeviceType string

// Supported device types.
const (
	DeviceTypeWindow DeviceType = "window_sensor"
)

// StateFilter narrows a query to devices in a specific state.
type StateFilter int

const (
	FilterAll StateFilter = iota
	FilterOpen
	FilterClosed
)

func (f StateFilter) String() string {
	switch f {
	case FilterOpen:
		return "open"
	case FilterClosed:
		return "closed"
	default:
		return "all"
	}
}

// DeviceState is the latest known reading for one physical device.
// Rows are produced by the repository query and live only for the
// duration of one request.
type DeviceState struct {
	DeviceName string
	Room       string
	LastSeen   time.Time
	Open       bool
}

// Parameters carries the filter criteria extracted from one intent.
type Parameters struct {
	DeviceType  DeviceType
	Rooms       []string
	StateFilter StateFilter
}

// deviceKeywords maps intent nouns to device types. Both singular and
// plural forms are listed because the intent engine does not stem.
var deviceKeywords = map[string]DeviceType{
	"window":  DeviceTypeWindow,
	"windows": DeviceTypeWindow,
}

// normalizeRoom strips whitespace from a spoken room name to match the
// ingest pipeline's storage format ("living room" → "livingroom").
func normalizeRoom(room string) string {
	return strings.ReplaceAll(room, " ", "")
}

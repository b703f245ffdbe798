package iotstate

import (
	"strings"
	"testing"
	"time"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	return r
}

func TestStateQuery_SingleOpenWindow(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.StateQuery(
		Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"living room"}, StateFilter: FilterOpen},
		[]DeviceState{{DeviceName: "left window", Room: "living_room", Open: true}},
	)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	want := "The left window in room living room is open."
	if got != want {
		t.Errorf("StateQuery() = %q, want %q", got, want)
	}
}

func TestStateQuery_SingleClosedWindow(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.StateQuery(
		Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"bedroom"}, StateFilter: FilterClosed},
		[]DeviceState{{DeviceName: "right window", Room: "bedroom", Open: false}},
	)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	want := "The right window in room bedroom is closed."
	if got != want {
		t.Errorf("StateQuery() = %q, want %q", got, want)
	}
}

func TestStateQuery_MultipleWindows(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.StateQuery(
		Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"living room", "bedroom"}},
		[]DeviceState{
			{DeviceName: "left window", Room: "living_room", Open: true},
			{DeviceName: "right window", Room: "bedroom", Open: false},
		},
	)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	want := "The left window in room living room is open.\nThe right window in room bedroom is closed."
	if got != want {
		t.Errorf("StateQuery() = %q, want %q", got, want)
	}
}

func TestStateQuery_EmptyWithRooms(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.StateQuery(
		Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"kitchen", "bathroom"}, StateFilter: FilterClosed},
		nil,
	)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	want := "No database entries were found for kitchen, bathroom."
	if got != want {
		t.Errorf("StateQuery() = %q, want %q", got, want)
	}
}

func TestStateQuery_EmptyWithoutRooms(t *testing.T) {
	r := newTestRenderer(t)

	got, err := r.StateQuery(Parameters{DeviceType: DeviceTypeWindow}, nil)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	want := "No database entries were found."
	if got != want {
		t.Errorf("StateQuery() = %q, want %q", got, want)
	}
	if strings.Contains(got, "for") {
		t.Errorf("empty no-room response should not mention rooms: %q", got)
	}
}

func TestStateQuery_EveryDeviceExactlyOnce(t *testing.T) {
	r := newTestRenderer(t)

	states := []DeviceState{
		{DeviceName: "window 1", Room: "room1", LastSeen: time.Now(), Open: true},
		{DeviceName: "window 2", Room: "room1", Open: false},
		{DeviceName: "window 3", Room: "room2", Open: true},
		{DeviceName: "window 4", Room: "room3", Open: false},
	}

	got, err := r.StateQuery(Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"test_room"}}, states)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}

	lines := strings.Split(got, "\n")
	if len(lines) != len(states) {
		t.Fatalf("len(lines) = %d, want %d:\n%s", len(lines), len(states), got)
	}
	for _, s := range states {
		if n := strings.Count(got, s.DeviceName); n != 1 {
			t.Errorf("device %q appears %d times, want 1", s.DeviceName, n)
		}
	}
}

func TestStateQuery_ActualStateNotFilter(t *testing.T) {
	// The sentence reflects the device's stored state, not the query
	// filter the user asked with.
	r := newTestRenderer(t)

	got, err := r.StateQuery(
		Parameters{DeviceType: DeviceTypeWindow, Rooms: []string{"kitchen"}, StateFilter: FilterAll},
		[]DeviceState{
			{DeviceName: "window 3", Room: "kitchen", Open: true},
			{DeviceName: "window 4", Room: "kitchen", Open: false},
		},
	)
	if err != nil {
		t.Fatalf("StateQuery() error = %v", err)
	}
	if !strings.Contains(got, "is open") {
		t.Errorf("missing open state in %q", got)
	}
	if !strings.Contains(got, "is closed") {
		t.Errorf("missing closed state in %q", got)
	}
}

package drone

import (
	"testing"
	"time"
)

func TestAvailableForDispatch(t *testing.T) {
	d := New("DR-001", "alpha")
	if err := d.AvailableForDispatch(); err != nil {
		t.Fatalf("fresh idle drone should be available: %v", err)
	}

	d.Status = StatusDelivering
	if err := d.AvailableForDispatch(); err == nil {
		t.Fatal("delivering drone must not be available")
	}

	d.Status = StatusIdle
	d.BatteryLevel = 19
	if err := d.AvailableForDispatch(); err == nil {
		t.Fatal("battery below 20 must block dispatch")
	}

	d.BatteryLevel = 20
	d.IsActive = false
	if err := d.AvailableForDispatch(); err == nil {
		t.Fatal("deactivated drone must not be available")
	}
}

func TestSetBattery_Range(t *testing.T) {
	d := New("DR-002", "beta")
	if err := d.SetBattery(101); err == nil {
		t.Fatal("battery above 100 must be rejected")
	}
	if err := d.SetBattery(-1); err == nil {
		t.Fatal("negative battery must be rejected")
	}
	if err := d.SetBattery(0); err != nil {
		t.Fatalf("battery 0 is valid: %v", err)
	}
	if err := d.SetBattery(100); err != nil {
		t.Fatalf("battery 100 is valid: %v", err)
	}
}

func TestBeginDelivery_RequiresPosition(t *testing.T) {
	d := New("DR-003", "gamma")
	if d.CurrentLat != nil {
		t.Fatal("fresh drone has no position")
	}
	d.BeginDelivery(12.97, 77.59)
	if d.Status != StatusDelivering {
		t.Fatalf("expected delivering, got %s", d.Status)
	}
	if d.CurrentLat == nil || d.CurrentLng == nil {
		t.Fatal("delivering drone must have a position")
	}
}

func TestUpdatePosition_SetsHeartbeat(t *testing.T) {
	d := New("DR-004", "delta")
	alt := 120.0
	at := time.Now()
	d.UpdatePosition(12.98, 77.60, &alt, at)
	if d.LastHeartbeat == nil || !d.LastHeartbeat.Equal(at) {
		t.Fatal("heartbeat must track the telemetry timestamp")
	}
	if d.CurrentAltitude == nil || *d.CurrentAltitude != 120 {
		t.Fatal("altitude must be recorded")
	}
}

package telemetry

import (
	"testing"
	"time"
)

func TestConnectionQuality(t *testing.T) {
	cases := []struct {
		gap  time.Duration
		want float64
	}{
		{2 * time.Second, 100},
		{5 * time.Second, 100},
		{60 * time.Second, 0},
		{5 * time.Minute, 0},
	}
	for _, tc := range cases {
		if got := connectionQuality(tc.gap); got != tc.want {
			t.Fatalf("quality(%v) = %v, want %v", tc.gap, got, tc.want)
		}
	}

	mid := connectionQuality(30 * time.Second)
	if mid <= 0 || mid >= 100 {
		t.Fatalf("a 30s gap should score between the extremes, got %v", mid)
	}
}

func TestValidate(t *testing.T) {
	lat, lng := 12.97, 77.59
	ok := Ingest{Lat: &lat, Lng: &lng, BatteryLevel: 80}
	if err := validate(ok); err != nil {
		t.Fatalf("valid report rejected: %v", err)
	}

	if err := validate(Ingest{Lat: &lat, BatteryLevel: 80}); err == nil {
		t.Fatal("lat without lng must be rejected")
	}

	bad := 181.0
	if err := validate(Ingest{Lat: &lat, Lng: &bad, BatteryLevel: 80}); err == nil {
		t.Fatal("out-of-range longitude must be rejected")
	}

	if err := validate(Ingest{BatteryLevel: 120}); err == nil {
		t.Fatal("battery above 100 must be rejected")
	}

	// Heartbeat without a position is a legal report.
	if err := validate(Ingest{BatteryLevel: 55}); err != nil {
		t.Fatalf("battery-only heartbeat rejected: %v", err)
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestDeviceAttributes(t *testing.T) {
	tests := []struct {
		name      string
		deviceID  string
		kind      string
		source    string
		frequency int
		wantLen   int
	}{
		{name: "all fields", deviceID: "sat-0", kind: "satellite", source: "astra", frequency: 11494, wantLen: 4},
		{name: "only id", deviceID: "sat-0", wantLen: 1},
		{name: "empty fields", wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attrs := DeviceAttributes(tt.deviceID, tt.kind, tt.source, tt.frequency)
			if len(attrs) != tt.wantLen {
				t.Errorf("Expected %d attributes, got %d", tt.wantLen, len(attrs))
			}
			if tt.deviceID != "" {
				verifyAttribute(t, attrs, DeviceIDKey, tt.deviceID)
			}
			if tt.frequency > 0 {
				verifyIntAttribute(t, attrs, DeviceFrequencyKey, tt.frequency)
			}
		})
	}
}

func TestStreamAttributes(t *testing.T) {
	attrs := StreamAttributes("sess-1", "ch-42")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}
	verifyAttribute(t, attrs, StreamSessionKey, "sess-1")
	verifyAttribute(t, attrs, StreamChannelKey, "ch-42")
}

func TestScanEntryAttributes(t *testing.T) {
	attrs := ScanEntryAttributes(3, 2, 5)

	verifyIntAttribute(t, attrs, ScanLineKey, 3)
	verifyIntAttribute(t, attrs, ScanDiseqcKey, 2)
	verifyIntAttribute(t, attrs, ScanFoundKey, 5)
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes(errors.New("no tuner"), "resource_exhausted")

	if len(attrs) != 2 {
		t.Fatalf("Expected 2 attributes, got %d", len(attrs))
	}

	verifyBoolAttribute(t, attrs, ErrorKey, true)
	verifyAttribute(t, attrs, ErrorTypeKey, "resource_exhausted")
}

// Helper functions for attribute verification

func verifyAttribute(t *testing.T, attrs []attribute.KeyValue, key, expectedValue string) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsString() != expectedValue {
				t.Errorf("Expected %s=%s, got %s", key, expectedValue, attr.Value.AsString())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyIntAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue int) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsInt64() != int64(expectedValue) {
				t.Errorf("Expected %s=%d, got %d", key, expectedValue, attr.Value.AsInt64())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

func verifyBoolAttribute(t *testing.T, attrs []attribute.KeyValue, key string, expectedValue bool) {
	t.Helper()
	for _, attr := range attrs {
		if string(attr.Key) == key {
			if attr.Value.AsBool() != expectedValue {
				t.Errorf("Expected %s=%t, got %t", key, expectedValue, attr.Value.AsBool())
			}
			return
		}
	}
	t.Errorf("Attribute %s not found", key)
}

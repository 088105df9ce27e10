// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Device attributes
	DeviceIDKey        = "tuner.device_id"
	DeviceKindKey      = "tuner.kind"
	DeviceSourceKey    = "tuner.source"
	DeviceFrequencyKey = "tuner.frequency"

	// Stream attributes
	StreamSessionKey = "stream.session_id"
	StreamChannelKey = "stream.channel_id"
	StreamPathKey    = "stream.path"

	// Scan attributes
	ScanLineKey    = "scan.line"
	ScanDiseqcKey  = "scan.diseqc"
	ScanFoundKey   = "scan.found"
	ScanEntriesKey = "scan.entries"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// DeviceAttributes creates device-related span attributes.
func DeviceAttributes(deviceID, kind, source string, frequency int) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 4)
	if deviceID != "" {
		attrs = append(attrs, attribute.String(DeviceIDKey, deviceID))
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(DeviceKindKey, kind))
	}
	if source != "" {
		attrs = append(attrs, attribute.String(DeviceSourceKey, source))
	}
	if frequency > 0 {
		attrs = append(attrs, attribute.Int(DeviceFrequencyKey, frequency))
	}
	return attrs
}

// StreamAttributes creates streaming-related span attributes.
func StreamAttributes(sessionID, channelID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(StreamSessionKey, sessionID),
		attribute.String(StreamChannelKey, channelID),
	}
}

// ScanEntryAttributes creates attributes for one scan-file entry attempt.
func ScanEntryAttributes(line, diseqc, found int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(ScanLineKey, line),
		attribute.Int(ScanDiseqcKey, diseqc),
		attribute.Int(ScanFoundKey, found),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

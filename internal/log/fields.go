// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID     = "session_id"
	FieldChannelID     = "channel_id"
	FieldDeviceID      = "device_id"
	FieldRequestID     = "request_id"
	FieldCorrelationID = "correlation_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Tuning fields
	FieldKind      = "kind"
	FieldSource    = "source"
	FieldFrequency = "frequency"
	FieldDiseqc    = "diseqc"
	FieldEntry     = "entry"
	FieldLine      = "line"

	// Discovery fields
	FieldChannelNumber = "channel_number"
	FieldPID           = "pid"

	// Health fields
	FieldFault = "fault"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path fields
	FieldPath = "path"
)

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func decodeLast(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var out map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &out))
	return out
}

func TestConfigureAttachesServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "tunerd-test", Version: "v0"})

	l := WithComponent("allocator")
	l.Info().Str(FieldDeviceID, "dev-1").Msg("hello")

	entry := decodeLast(t, &buf)
	require.Equal(t, "tunerd-test", entry["service"])
	require.Equal(t, "v0", entry["version"])
	require.Equal(t, "allocator", entry[FieldComponent])
	require.Equal(t, "dev-1", entry[FieldDeviceID])
}

func TestSetLevelRejectsUnknown(t *testing.T) {
	require.Error(t, SetLevel("loud"))
	require.NoError(t, SetLevel("info"))
}

func TestWithContextAddsCorrelationFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "info", Output: &buf})

	ctx := ContextWithRequestID(nil, "req-1")
	ctx = ContextWithCorrelationID(ctx, "corr-1")
	l := WithComponentFromContext(ctx, "api")
	l.Info().Msg("request")

	entry := decodeLast(t, &buf)
	require.Equal(t, "req-1", entry[FieldRequestID])
	require.Equal(t, "corr-1", entry[FieldCorrelationID])
}

func TestWithContextWithoutFieldsReturnsLogger(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Output: &buf})

	l := WithContext(context.Background(), Base())
	l.Info().Msg("plain")

	entry := decodeLast(t, &buf)
	_, has := entry[FieldRequestID]
	require.False(t, has)
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDiskRecordRoundTripsParams(t *testing.T) {
	v := CachedResponse{
		Fingerprint: "fp1",
		Prompt:      "hi",
		Response:    "hello",
		Model:       "m",
		Params:      map[string]any{"temperature": 0.6, "max_tokens": 100.0, "stop": []any{"\n"}},
		CreatedAt:   time.Unix(1000, 0).UTC(),
		ExpiresAt:   time.Unix(2000, 0).UTC(),
	}

	data, err := encodeDiskRecord(v)
	require.NoError(t, err)

	got, err := decodeDiskRecord(data)
	require.NoError(t, err)
	require.Equal(t, v.Fingerprint, got.Fingerprint)
	require.Equal(t, v.Response, got.Response)
	require.Equal(t, 0.6, got.Params["temperature"])
	require.Equal(t, 100.0, got.Params["max_tokens"])
	require.Equal(t, []any{"\n"}, got.Params["stop"])
}

func TestDiskRecordRoundTripsNilParams(t *testing.T) {
	v := CachedResponse{Fingerprint: "fp2", Response: "hello"}

	data, err := encodeDiskRecord(v)
	require.NoError(t, err)

	got, err := decodeDiskRecord(data)
	require.NoError(t, err)
	require.Nil(t, got.Params)
}

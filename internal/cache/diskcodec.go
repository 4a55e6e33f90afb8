package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// diskRecord is the on-disk shape of a CachedResponse. Params is carried as
// a protojson-encoded structpb.Struct rather than a plain JSON object: it is
// the same dynamic, arbitrarily-nested "bag of parameters" structpb.Struct
// was designed for (the same role it plays as TaskSpec.Parameters for
// dispatched tasks), so the disk tier encodes it the same way rather than
// leaning on encoding/json twice for two different dynamic-value shapes.
type diskRecord struct {
	Fingerprint string          `json:"fingerprint"`
	Prompt      string          `json:"prompt"`
	Response    string          `json:"response"`
	Model       string          `json:"model"`
	Params      json.RawMessage `json:"params,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   time.Time       `json:"expires_at"`
}

// encodeDiskRecord marshals v for disk storage, converting Params through
// structpb so malformed dynamic values (channels, funcs) are rejected here
// rather than surfacing as a silent empty object.
func encodeDiskRecord(v CachedResponse) ([]byte, error) {
	rec := diskRecord{
		Fingerprint: v.Fingerprint,
		Prompt:      v.Prompt,
		Response:    v.Response,
		Model:       v.Model,
		CreatedAt:   v.CreatedAt,
		ExpiresAt:   v.ExpiresAt,
	}
	if len(v.Params) > 0 {
		ps, err := structpb.NewStruct(v.Params)
		if err != nil {
			return nil, fmt.Errorf("cache: encoding params as structpb.Struct: %w", err)
		}
		raw, err := protojson.Marshal(ps)
		if err != nil {
			return nil, fmt.Errorf("cache: marshaling params struct: %w", err)
		}
		rec.Params = raw
	}
	return json.Marshal(rec)
}

// decodeDiskRecord is encodeDiskRecord's inverse.
func decodeDiskRecord(data []byte) (CachedResponse, error) {
	var rec diskRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return CachedResponse{}, err
	}
	v := CachedResponse{
		Fingerprint: rec.Fingerprint,
		Prompt:      rec.Prompt,
		Response:    rec.Response,
		Model:       rec.Model,
		CreatedAt:   rec.CreatedAt,
		ExpiresAt:   rec.ExpiresAt,
	}
	if len(rec.Params) > 0 {
		ps := &structpb.Struct{}
		if err := protojson.Unmarshal(rec.Params, ps); err != nil {
			return CachedResponse{}, fmt.Errorf("cache: unmarshaling params struct: %w", err)
		}
		v.Params = ps.AsMap()
	}
	return v, nil
}

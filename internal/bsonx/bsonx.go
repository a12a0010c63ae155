// Package bsonx provides BSON Extended JSON round-tripping so ObjectId
// and date values survive the RPC wire and tool-result envelopes exactly
// the way the Python host's bson.json_util preserved them.
package bsonx

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
)

// ToExtJSON converts a BSON-bearing Go value (bson.M, bson.D, a driver
// cursor's decoded documents, …) into a plain any tree (map[string]any /
// []any / scalars) whose ObjectId and time.Time leaves have been routed
// through relaxed Extended JSON: they come back as {"$oid": …} and
// {"$date": …} maps, while numbers stay plain JSON numbers.
func ToExtJSON(v any) (any, error) {
	raw, err := bson.MarshalExtJSON(v, false, false)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeMessage unmarshals a line of Extended JSON text into a bson.M,
// the transport-level representation of one JSON-RPC frame.
func DecodeMessage(line []byte) (bson.M, error) {
	var m bson.M
	if err := bson.UnmarshalExtJSON(line, true, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeMessage marshals a JSON-RPC frame to canonical Extended JSON
// text (without a trailing newline).
func EncodeMessage(m bson.M) ([]byte, error) {
	return bson.MarshalExtJSON(m, true, false)
}

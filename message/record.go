package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotObject is returned when a payload is valid JSON but not an object.
var ErrNotObject = errors.New("record payload is not a JSON object")

// Vector2 is a 2D direction encoded on the wire as a [x, y] array.
type Vector2 struct {
	X float32
	Y float32
}

// MarshalJSON encodes the vector as [x, y].
func (v Vector2) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float32{v.X, v.Y})
}

// UnmarshalJSON accepts null (zero vector) or an array of at least two numbers.
func (v *Vector2) UnmarshalJSON(data []byte) error {
	var xs []float32
	if err := json.Unmarshal(data, &xs); err != nil {
		return err
	}
	if xs == nil {
		*v = Vector2{}
		return nil
	}
	if len(xs) < 2 {
		return fmt.Errorf("vector2: need 2 elements, got %d", len(xs))
	}
	*v = Vector2{X: xs[0], Y: xs[1]}
	return nil
}

// Eye holds one eye's sample. Each measurement carries its own validity flag.
type Eye struct {
	GazeDirectionValid bool    `json:"gaze_direction_is_valid"`
	GazeDirection      Vector2 `json:"gaze_direction"`
	PupilDiameterValid bool    `json:"pupil_diameter_is_valid"`
	PupilDiameterMm    float32 `json:"pupil_diameter_mm"`
	OpennessValid      bool    `json:"openness_is_valid"`
	// Openness ranges from 0 (closed) to 1 (open).
	Openness float32 `json:"openness"`
}

// Record is one decoded frame: a sample for each eye.
type Record struct {
	Left  Eye `json:"left"`
	Right Eye `json:"right"`
}

// Unmarshal decodes a JSON payload into a Record.
// The payload must be a JSON object; null and other top-level values fail.
func Unmarshal(data []byte) (Record, error) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return Record{}, ErrNotObject
		}
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Marshal encodes r as a JSON payload.
func Marshal(r Record) ([]byte, error) {
	return json.Marshal(r)
}

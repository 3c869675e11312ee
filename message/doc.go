// Package message defines the eye-tracking record carried by every frame of
// the stream, together with its JSON wire encoding.
//
// A Record is an immutable value: the frame decoder produces one per frame,
// the record queue owns it while buffered, and the consumer owns it after
// dequeue. Records have no identity beyond arrival order.
//
// Wire names are snake_case:
//
//	{
//	  "left":  {"gaze_direction_is_valid": true, "gaze_direction": [0.5, -0.2],
//	            "pupil_diameter_is_valid": true, "pupil_diameter_mm": 3.1,
//	            "openness_is_valid": true, "openness": 0.9},
//	  "right": {...}
//	}
//
// A null or absent gaze_direction decodes to (0, 0). An array with fewer than
// two elements is rejected.
package message

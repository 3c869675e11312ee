package testutil

import (
	"github.com/c360/gazestream/message"
)

// SampleRecord returns a fully valid record whose values vary with i.
func SampleRecord(i int) message.Record {
	f := float32(i)
	return message.Record{
		Left: message.Eye{
			GazeDirectionValid: true,
			GazeDirection:      message.Vector2{X: 0.01 * f, Y: -0.01 * f},
			PupilDiameterValid: true,
			PupilDiameterMm:    3 + 0.1*f,
			OpennessValid:      true,
			Openness:           0.5,
		},
		Right: message.Eye{
			GazeDirectionValid: true,
			GazeDirection:      message.Vector2{X: -0.01 * f, Y: 0.01 * f},
			PupilDiameterValid: true,
			PupilDiameterMm:    3.2 + 0.1*f,
			OpennessValid:      true,
			Openness:           0.75,
		},
	}
}

// SampleRecords returns n sequential sample records.
func SampleRecords(n int) []message.Record {
	out := make([]message.Record, n)
	for i := range out {
		out[i] = SampleRecord(i)
	}
	return out
}

// InvalidRecord returns a record with every validity flag cleared.
func InvalidRecord() message.Record {
	return message.Record{}
}

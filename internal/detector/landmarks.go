// Package detector defines the holistic landmark types that extractors produce
// and the pipeline consumes. It has no cgo dependencies.
package detector

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Landmark counts and channels per group, following the MediaPipe Holistic convention.
// See: https://github.com/google/mediapipe/blob/master/docs/solutions/holistic.md
const (
	PosePoints = 33
	FacePoints = 468
	HandPoints = 21

	PoseChannels = 4 // x, y, z, visibility
	FaceChannels = 3
	HandChannels = 3
)

// Kind identifies one landmark group of a holistic frame.
type Kind int

const (
	Pose Kind = iota
	Face
	LeftHand
	RightHand
)

// Kinds lists every group kind in feature order.
var Kinds = [...]Kind{Pose, Face, LeftHand, RightHand}

// Points returns the number of points the group contributes to a feature vector.
func (k Kind) Points() int {
	switch k {
	case Pose:
		return PosePoints
	case Face:
		return FacePoints
	case LeftHand, RightHand:
		return HandPoints
	}
	return 0
}

// Channels returns the number of scalars emitted per point.
func (k Kind) Channels() int {
	switch k {
	case Pose:
		return PoseChannels
	case Face:
		return FaceChannels
	case LeftHand, RightHand:
		return HandChannels
	}
	return 0
}

// Width returns Points()*Channels().
func (k Kind) Width() int {
	return k.Points() * k.Channels()
}

func (k Kind) String() string {
	switch k {
	case Pose:
		return "pose"
	case Face:
		return "face"
	case LeftHand:
		return "left_hand"
	case RightHand:
		return "right_hand"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Point is a single normalized landmark. Visibility is only meaningful for pose points.
type Point struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility,omitempty"`
}

// UnmarshalJSON accepts both {"x":..,"y":..,"z":..} and [x, y, z, visibility].
// Channels missing from either form decode as 0.
func (p *Point) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var channels []*float64
		if err := json.Unmarshal(data, &channels); err != nil {
			return fmt.Errorf("decode point array: %w", err)
		}
		dst := [...]*float64{&p.X, &p.Y, &p.Z, &p.Visibility}
		*p = Point{}
		for i := 0; i < len(dst) && i < len(channels); i++ {
			if channels[i] != nil {
				*dst[i] = *channels[i]
			}
		}
		return nil
	}

	type plain Point
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode point: %w", err)
	}
	*p = Point(v)
	return nil
}

// Group is an ordered run of points of one kind. A nil Group means the
// extractor did not detect that group in the frame.
type Group []Point

// Frame holds the landmark groups extracted from one video frame.
type Frame struct {
	Pose      Group `json:"pose,omitempty"`
	Face      Group `json:"face,omitempty"`
	LeftHand  Group `json:"left_hand,omitempty"`
	RightHand Group `json:"right_hand,omitempty"`
	Timestamp int64 `json:"timestamp,omitempty"` // Unix milliseconds
}

// Group returns the group of the given kind, or nil when absent.
func (f *Frame) Group(k Kind) Group {
	if f == nil {
		return nil
	}
	switch k {
	case Pose:
		return f.Pose
	case Face:
		return f.Face
	case LeftHand:
		return f.LeftHand
	case RightHand:
		return f.RightHand
	}
	return nil
}

// Empty reports whether no group was detected.
func (f *Frame) Empty() bool {
	for _, k := range Kinds {
		if f.Group(k) != nil {
			return false
		}
	}
	return true
}

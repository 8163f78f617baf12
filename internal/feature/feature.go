// Package feature encodes holistic landmark frames into fixed-length vectors.
//
// The layout is a contract with the inference service: pose (33x4), face (468x3),
// left hand (21x3) and right hand (21x3), concatenated in that order. Absent
// groups are zero-filled so every vector has exactly Length entries.
package feature

import "github.com/ayusman/signlearn/internal/detector"

// Length is the number of floats in one encoded frame.
const Length = detector.PosePoints*detector.PoseChannels +
	detector.FacePoints*detector.FaceChannels +
	2*detector.HandPoints*detector.HandChannels

// Vector is one encoded frame.
type Vector []float64

// Offset returns the index at which the run for kind k starts.
func Offset(k detector.Kind) int {
	off := 0
	for _, kind := range detector.Kinds {
		if kind == k {
			return off
		}
		off += kind.Width()
	}
	return -1
}

// Encode converts one frame into a Vector of exactly Length entries.
//
// A group with more points than its kind allows is truncated to the first
// Points() in extractor order. A group with fewer points is padded with zeros.
// A nil frame encodes as all zeros.
func Encode(f *detector.Frame) Vector {
	v := make(Vector, Length)
	off := 0
	for _, k := range detector.Kinds {
		encodeGroup(v[off:off+k.Width()], f.Group(k), k)
		off += k.Width()
	}
	return v
}

// encodeGroup writes g into dst, which is already zeroed and k.Width() long.
func encodeGroup(dst []float64, g detector.Group, k detector.Kind) {
	n := len(g)
	if n > k.Points() {
		n = k.Points()
	}
	ch := k.Channels()
	for i := 0; i < n; i++ {
		p := g[i]
		base := i * ch
		dst[base] = p.X
		dst[base+1] = p.Y
		dst[base+2] = p.Z
		if ch == detector.PoseChannels {
			dst[base+3] = p.Visibility
		}
	}
}

// Presence records which groups a frame carried.
type Presence [len(detector.Kinds)]bool

// Present reports, per kind, whether the frame carried that group.
func Present(f *detector.Frame) Presence {
	var p Presence
	for i, k := range detector.Kinds {
		p[i] = f.Group(k) != nil
	}
	return p
}

// Has reports whether kind k was present.
func (p Presence) Has(k detector.Kind) bool {
	return p[k]
}

package detector

// SyntheticValue is the deterministic channel value used by SyntheticFrame.
// Every (seed, kind, point, channel) combination yields a distinct value.
func SyntheticValue(seed int, k Kind, point, channel int) float64 {
	return float64(seed) + float64(k)*0.1 + float64(point)*0.0001 + float64(channel)*0.00001
}

// SyntheticGroup returns a full group of the given kind filled with SyntheticValue.
func SyntheticGroup(seed int, k Kind) Group {
	g := make(Group, k.Points())
	for i := range g {
		g[i] = Point{
			X: SyntheticValue(seed, k, i, 0),
			Y: SyntheticValue(seed, k, i, 1),
			Z: SyntheticValue(seed, k, i, 2),
		}
		if k.Channels() == PoseChannels {
			g[i].Visibility = SyntheticValue(seed, k, i, 3)
		}
	}
	return g
}

// SyntheticFrame returns a frame with all four groups present and distinct,
// reproducible values for the given seed.
func SyntheticFrame(seed int) *Frame {
	return &Frame{
		Pose:      SyntheticGroup(seed, Pose),
		Face:      SyntheticGroup(seed, Face),
		LeftHand:  SyntheticGroup(seed, LeftHand),
		RightHand: SyntheticGroup(seed, RightHand),
		Timestamp: int64(seed),
	}
}

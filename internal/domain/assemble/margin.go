package assemble

// Margin is a span trimmed from one end of a source clip. Values in [0, 1)
// are a fraction of the clip duration; anything larger is in seconds.
type Margin float64

// Seconds resolves the margin against a clip of dur seconds.
func (m Margin) Seconds(dur float64) float64 {
	if m <= 0 {
		return 0
	}
	if m < 1 {
		return float64(m) * dur
	}
	return float64(m)
}

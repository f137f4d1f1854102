package types

// AudioTrack is the resolved audio of a run. Path is empty when the track is a
// bare duration; BPM is zero when beats came from a file or onset tracking.
type AudioTrack struct {
	Path     string    `json:"path,omitempty"`
	Duration float64   `json:"duration"`
	BPM      float64   `json:"bpm,omitempty"`
	Beats    []float64 `json:"-"`
}

type SegmentRecord struct {
	Source    string  `json:"source"`
	Start     float64 `json:"start_sec"`
	Requested float64 `json:"requested_sec"`
	Actual    float64 `json:"actual_sec"`
	Output    string  `json:"output"`
	Position  float64 `json:"position_sec"`
}

// End returns the timeline position right after the segment.
func (s SegmentRecord) End() float64 { return s.Position + s.Actual }

type Timeline struct {
	Segments []SegmentRecord
	Total    float64
}

// Paths returns segment outputs in timeline order.
func (t Timeline) Paths() []string {
	out := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		out = append(out, s.Output)
	}
	return out
}

type EventKind string

const (
	EventAudio    EventKind = "audio"
	EventSegment  EventKind = "segment"
	EventJoin     EventKind = "join"
	EventFinalize EventKind = "finalize"
)

type Event struct {
	Kind     EventKind
	Progress float64
	Segment  *SegmentRecord
	Message  string
}

type Manifest struct {
	UID      string            `json:"uid"`
	Audio    string            `json:"audio"`
	BPM      float64           `json:"bpm,omitempty"`
	Duration float64           `json:"duration_sec"`
	Beats    int               `json:"beats"`
	GridSize int               `json:"grid_size"`
	Total    float64           `json:"total_sec"`
	Final    string            `json:"final,omitempty"`
	Segments []ManifestSegment `json:"segments"`
}

type ManifestSegment struct {
	ID        string  `json:"id"`
	File      string  `json:"file"`
	Source    string  `json:"source"`
	StartSec  float64 `json:"start_sec"`
	LengthSec float64 `json:"length_sec"`
	ActualSec float64 `json:"actual_sec"`
	AtSec     float64 `json:"at_sec"`
}

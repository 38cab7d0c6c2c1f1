package types

// Method identifies which estimation strategy produced an alignment.
type Method string

const (
	MethodTimestamp Method = "timestamp"
	MethodSSIM      Method = "ssim"
	MethodFeature   Method = "feature"
	MethodPhase     Method = "phase"
)

// VideoInfo is a snapshot of a file's stream parameters at probe time.
// It goes stale if the file is re-encoded; re-probe after normalization.
type VideoInfo struct {
	Path       string  `json:"path"`
	Duration   float64 `json:"duration_seconds"`
	FrameRate  float64 `json:"frame_rate"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	FrameCount int     `json:"frame_count"`
	PixFmt     string  `json:"pixel_format"`
}

// TimestampSample pairs a sampled frame's position in its own timeline with
// the wall-clock value OCR'd from its burned-in overlay. Decoded is nil when
// no legible value could be parsed from the frame.
type TimestampSample struct {
	FrameIndex int
	VideoTime  float64
	Decoded    *float64
}

// OffsetCandidate is one strategy's hypothesis. Score scales are
// method-specific; only the orchestrator may compare them across methods.
type OffsetCandidate struct {
	Offset int
	Score  float64
	Method Method
}

// AlignmentResult is the output contract handed to downstream quality
// analysis. Confidence is heuristic and ordinal, not a probability.
type AlignmentResult struct {
	Method           Method  `json:"method"`
	OffsetFrames     int     `json:"offset_frames"`
	OffsetSeconds    float64 `json:"offset_seconds"`
	Confidence       float64 `json:"confidence"`
	AlignedReference string  `json:"aligned_reference"`
	AlignedCaptured  string  `json:"aligned_captured"`
	FrameCount       int     `json:"frame_count"`
}

// ProgressFunc receives a 0-100 progress signal during long searches.
// Presentation only; implementations must tolerate being nil.
type ProgressFunc func(percent int)

// StatusFunc receives free-text status messages. Presentation only.
type StatusFunc func(msg string)

package domain

// AudioPolicy selects how the source audio stream is handled.
type AudioPolicy string

const (
	AudioCopy         AudioPolicy = "copy"
	AudioTranscodeAAC AudioPolicy = "aac"
	AudioTranscodeMP3 AudioPolicy = "mp3"
	AudioStrip        AudioPolicy = "strip"
)

// PassMode selects single-pass or two-pass encoding for size-targeted jobs.
type PassMode string

const (
	SinglePass PassMode = "single"
	TwoPass    PassMode = "two"
)

// AspectMode selects how a resize reconciles source and target aspect ratios.
type AspectMode string

const (
	// AspectPad letterboxes the scaled frame to the exact target size.
	AspectPad AspectMode = "pad"
	// AspectCrop trims the scaled frame to the exact target size.
	AspectCrop AspectMode = "crop"
)

// ResizeSpec describes the target dimensions of a video resize filter.
type ResizeSpec struct {
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	AspectMode   AspectMode `json:"aspectMode"`
	AllowUpscale bool       `json:"allowUpscale"`
}

// Job is one conversion work item. Jobs are immutable once enqueued and
// single-use: each job is consumed by exactly one conversion attempt.
type Job struct {
	InputPath       string      `json:"inputPath"`
	OutputPath      string      `json:"outputPath"`
	AudioPolicy     AudioPolicy `json:"audioPolicy"`
	TargetSizeBytes int64       `json:"targetSizeBytes,omitempty"`
	Resize          *ResizeSpec `json:"resize,omitempty"`
	PassMode        PassMode    `json:"passMode"`
}

// ConversionOptions are the batch-wide settings applied to every input file.
// OutputFormat selects the target container by extension; when empty, every
// output keeps its source container.
type ConversionOptions struct {
	AudioPolicy     AudioPolicy `json:"audioPolicy"`
	TargetSizeBytes int64       `json:"targetSizeBytes,omitempty"`
	Resize          *ResizeSpec `json:"resize,omitempty"`
	PassMode        PassMode    `json:"passMode"`
	OutputFormat    string      `json:"outputFormat,omitempty"`
}

// BatchStatus tracks the lifecycle of one batch run.
type BatchStatus string

const (
	BatchStatusIdle      BatchStatus = "idle"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Batch stores the current batch identity, size, and lifecycle status.
type Batch struct {
	ID     string      `json:"id"`
	Status BatchStatus `json:"status"`
	Total  int         `json:"total"`
}

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir   string `json:"outputDir"`
	FFmpegPath  string `json:"ffmpegPath"`
	FFprobePath string `json:"ffprobePath"`
	LogLevel    string `json:"logLevel"`
}

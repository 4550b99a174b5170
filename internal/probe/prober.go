package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// NotAvailable is the sentinel reported for missing streams or fields.
const NotAvailable = "N/A"

// Result holds the container and stream metadata read from one media file.
type Result struct {
	Path            string  `json:"path"`
	DurationSeconds float64 `json:"durationSeconds"`
	VideoCodec      string  `json:"videoCodec"`
	AudioCodec      string  `json:"audioCodec"`
	Resolution      string  `json:"resolution"`
	Bitrate         string  `json:"bitrate"`
	FileSizeBytes   int64   `json:"fileSizeBytes"`
}

// HasAudio reports whether the source carries a usable audio stream.
func (r Result) HasAudio() bool {
	return r.AudioCodec != "" && r.AudioCodec != NotAvailable
}

// Width returns the probed frame width in pixels, zero when unknown.
func (r Result) Width() int {
	width, _ := r.dimensions()
	return width
}

// Height returns the probed frame height in pixels, zero when unknown.
func (r Result) Height() int {
	_, height := r.dimensions()
	return height
}

func (r Result) dimensions() (int, int) {
	parts := strings.SplitN(r.Resolution, "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	width, err := strconv.Atoi(parts[0])
	if err != nil || width <= 0 {
		return 0, 0
	}
	height, err := strconv.Atoi(parts[1])
	if err != nil || height <= 0 {
		return 0, 0
	}
	return width, height
}

// ProbeError reports a failed metadata inspection for one file. Probe
// failures never block listing a file; they only block converting it when
// the duration stays unknown.
type ProbeError struct {
	Path    string
	Message string
	Err     error
}

// Error formats the failure for logs and UI notifications.
func (e *ProbeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("probe %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ProbeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ffprobeOutput mirrors the JSON document produced by ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
	Size     string `json:"size"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// commandResult is an internal process execution response.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}

// Prober reads media metadata through the external ffprobe tool.
type Prober struct {
	ffprobePath string
	runner      commandRunner
	stat        func(name string) (os.FileInfo, error)
	logger      *zap.Logger
}

// NewProber constructs a prober using the configured ffprobe binary.
func NewProber(ffprobePath string, logger *zap.Logger) *Prober {
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Prober{
		ffprobePath: ffprobePath,
		runner:      &execRunner{},
		stat:        os.Stat,
		logger:      logger,
	}
}

// Probe inspects one file with a blocking ffprobe call and maps its JSON
// output. A missing duration maps to zero seconds rather than an error.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	if strings.TrimSpace(path) == "" {
		return Result{}, &ProbeError{Message: "input path is required"}
	}

	args := buildProbeArgs(path)
	cmdResult, runErr := p.runner.Run(ctx, p.ffprobePath, args...)
	if runErr != nil {
		p.logger.Warn("ffprobe invocation failed",
			zap.String("path", path),
			zap.Int("exitCode", cmdResult.ExitCode),
			zap.Error(runErr),
		)
		return Result{}, &ProbeError{
			Path:    path,
			Message: "ffprobe invocation failed",
			Err:     runErr,
		}
	}

	var doc ffprobeOutput
	if err := json.Unmarshal([]byte(cmdResult.Stdout), &doc); err != nil {
		return Result{}, &ProbeError{
			Path:    path,
			Message: "ffprobe produced malformed output",
			Err:     err,
		}
	}

	return p.mapResult(path, doc), nil
}

// buildProbeArgs builds the quiet JSON metadata query for one file.
func buildProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}
}

// mapResult converts the wire document into a display-ready Result. The
// first video and first audio stream win; absent streams keep sentinels.
func (p *Prober) mapResult(path string, doc ffprobeOutput) Result {
	result := Result{
		Path:            path,
		DurationSeconds: parseSeconds(doc.Format.Duration),
		VideoCodec:      NotAvailable,
		AudioCodec:      NotAvailable,
		Resolution:      NotAvailable,
		Bitrate:         formatBitrate(doc.Format.BitRate),
		FileSizeBytes:   parseFileSize(doc.Format.Size),
	}

	videoSeen := false
	audioSeen := false
	for _, stream := range doc.Streams {
		switch stream.CodecType {
		case "video":
			if videoSeen {
				continue
			}
			videoSeen = true
			if stream.CodecName != "" {
				result.VideoCodec = stream.CodecName
			}
			if stream.Width > 0 && stream.Height > 0 {
				result.Resolution = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
			}
		case "audio":
			if audioSeen {
				continue
			}
			audioSeen = true
			if stream.CodecName != "" {
				result.AudioCodec = stream.CodecName
			}
		}
	}

	if result.FileSizeBytes == 0 {
		if info, err := p.stat(path); err == nil {
			result.FileSizeBytes = info.Size()
		}
	}

	return result
}

// parseSeconds converts ffprobe's duration string to seconds, zero when
// absent or unusable.
func parseSeconds(raw string) float64 {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, NotAvailable) {
		return 0
	}

	value, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// formatBitrate renders format.bit_rate as a kb/s label or the sentinel.
func formatBitrate(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.EqualFold(trimmed, NotAvailable) {
		return NotAvailable
	}

	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return NotAvailable
	}
	return fmt.Sprintf("%d kb/s", value/1000)
}

// parseFileSize converts format.size to bytes, zero when absent.
func parseFileSize(raw string) int64 {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || value < 0 {
		return 0
	}
	return value
}

// NewProberForTests constructs a prober with injectable dependencies.
func NewProberForTests(
	ffprobePath string,
	runner commandRunner,
	stat func(name string) (os.FileInfo, error),
) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		runner:      runner,
		stat:        stat,
		logger:      zap.NewNop(),
	}
}

package convert

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"video-converter/internal/domain"
	"video-converter/internal/probe"
)

// ConvertError reports a failed conversion attempt for one job. Message is
// the display text forwarded to the caller; ExitCode and Stderr carry the
// structured tool outcome when a subprocess ran.
type ConvertError struct {
	Path     string
	Message  string
	ExitCode int
	Stderr   string
	Err      error
}

// Error returns the display text for logs and UI notifications.
func (e *ConvertError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap exposes the underlying error for errors.Is / errors.As.
func (e *ConvertError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// streamResult is an internal process execution response.
type streamResult struct {
	Stderr   string
	ExitCode int
}

// streamRunner abstracts process execution with line-streamed stderr.
type streamRunner interface {
	Run(ctx context.Context, onLine func(line string), name string, args ...string) (streamResult, error)
}

// execStreamRunner executes commands via os/exec and forwards each stderr
// line as it arrives.
type execStreamRunner struct{}

// Run starts one command, streams its stderr line-by-line, and reports the
// captured diagnostic text and exit code after the process exits.
func (r *execStreamRunner) Run(ctx context.Context, onLine func(string), name string, args ...string) (streamResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return streamResult{ExitCode: -1}, err
	}
	if err := cmd.Start(); err != nil {
		return streamResult{ExitCode: -1}, err
	}

	var captured strings.Builder
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanStatsLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			captured.WriteString(line)
			captured.WriteByte('\n')
		}
		if onLine != nil {
			onLine(line)
		}
	}

	err = cmd.Wait()
	result := streamResult{
		Stderr:   captured.String(),
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

// scanStatsLines splits on \n or \r so the in-place stats line ffmpeg
// rewrites with carriage returns is delivered per update.
func scanStatsLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Converter drives the external ffmpeg binary for one job at a time.
type Converter struct {
	ffmpegPath string
	runner     streamRunner
	remove     func(name string) error
	logger     *zap.Logger
}

// NewConverter constructs a converter using the configured ffmpeg binary.
func NewConverter(ffmpegPath string, logger *zap.Logger) *Converter {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Converter{
		ffmpegPath: ffmpegPath,
		runner:     &execStreamRunner{},
		remove:     os.Remove,
		logger:     logger,
	}
}

// CheckTool verifies the ffmpeg binary answers a trivial version query.
func (c *Converter) CheckTool(ctx context.Context) error {
	if _, err := c.runner.Run(ctx, nil, c.ffmpegPath, "-version"); err != nil {
		return &ConvertError{
			Message: "ffmpeg is not installed or not found in system PATH",
			Err:     err,
		}
	}
	return nil
}

// Convert runs the full plan for one job, reporting progress parsed from
// the final pass's diagnostic stream. The job value is never mutated.
// Cancelling the context kills the active subprocess on either pass and
// returns the context error.
func (c *Converter) Convert(ctx context.Context, job domain.Job, source probe.Result, onProgress func(percent int)) error {
	plan, err := BuildPlan(job, source)
	if err != nil {
		return err
	}

	if err := c.CheckTool(ctx); err != nil {
		return err
	}

	if plan.PassLogPrefix != "" {
		defer c.cleanupPassLogs(plan.PassLogPrefix)
	}

	for i, args := range plan.Passes {
		finalPass := i == len(plan.Passes)-1

		var onLine func(string)
		if finalPass && onProgress != nil {
			onLine = func(line string) {
				elapsed, ok := parseProgressLine(line)
				if !ok || elapsed <= 0 {
					return
				}
				onProgress(progressPercent(elapsed, source.DurationSeconds))
			}
		}

		c.logger.Info("starting ffmpeg pass",
			zap.String("input", job.InputPath),
			zap.Int("pass", i+1),
			zap.Int("passes", len(plan.Passes)),
		)

		result, runErr := c.runner.Run(ctx, onLine, c.ffmpegPath, args...)
		if runErr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			c.logger.Warn("ffmpeg pass failed",
				zap.String("input", job.InputPath),
				zap.Int("exitCode", result.ExitCode),
			)
			return &ConvertError{
				Path:     job.InputPath,
				Message:  fmt.Sprintf("FFmpeg error (code %d): %s", result.ExitCode, strings.TrimSpace(result.Stderr)),
				ExitCode: result.ExitCode,
				Stderr:   result.Stderr,
				Err:      runErr,
			}
		}
	}

	return nil
}

// cleanupPassLogs removes two-pass statistics files, best effort.
func (c *Converter) cleanupPassLogs(prefix string) {
	for _, suffix := range []string{"-0.log", "-0.log.mbtree"} {
		path := prefix + suffix
		if err := c.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Debug("remove pass log", zap.String("path", path), zap.Error(err))
		}
	}
}

// NewConverterForTests constructs a converter with injectable dependencies.
func NewConverterForTests(
	ffmpegPath string,
	runner streamRunner,
	remove func(name string) error,
) *Converter {
	return &Converter{
		ffmpegPath: ffmpegPath,
		runner:     runner,
		remove:     remove,
		logger:     zap.NewNop(),
	}
}

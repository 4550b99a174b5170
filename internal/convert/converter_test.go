package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"video-converter/internal/domain"
	"video-converter/internal/probe"
)

// fakeStreamRunner records invocations and replays scripted outcomes. The
// run func receives the zero-based call index and the caller's line sink.
type fakeStreamRunner struct {
	calls [][]string
	run   func(call int, onLine func(string)) (streamResult, error)
}

func (f *fakeStreamRunner) Run(_ context.Context, onLine func(string), name string, args ...string) (streamResult, error) {
	call := len(f.calls)
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return streamResult{}, nil
	}
	return f.run(call, onLine)
}

// TestConvertEmitsProgressFromStatsLines checks that stats lines from the
// encode are translated into percentages while noise lines are dropped.
func TestConvertEmitsProgressFromStatsLines(t *testing.T) {
	runner := &fakeStreamRunner{}
	runner.run = func(call int, onLine func(string)) (streamResult, error) {
		if call == 1 {
			onLine("Stream mapping:")
			onLine("frame=  100 fps= 50 q=28.0 size=    1024KiB time=00:00:40.50 bitrate=1638.4kbits/s")
			onLine("size=N/A time=N/A bitrate=N/A")
			onLine("frame=  105 fps= 50 q=28.0 size=    1100KiB time=00:00:00.00 bitrate=1638.4kbits/s")
			onLine("frame=  220 fps= 50 q=28.0 size=    2048KiB time=00:01:30.00 bitrate=1638.4kbits/s")
		}
		return streamResult{}, nil
	}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{
		InputPath:   "/in/clip.mp4",
		OutputPath:  "/out/clip.mp4",
		AudioPolicy: domain.AudioCopy,
		PassMode:    domain.SinglePass,
	}

	var percents []int
	err := converter.Convert(context.Background(), job, sourceWithAudio(90), func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	want := []int{45, 100}
	if len(percents) != len(want) {
		t.Fatalf("percents = %v, want %v", percents, want)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Fatalf("percents = %v, want %v", percents, want)
		}
	}

	if len(runner.calls) != 2 {
		t.Fatalf("calls = %d, want version check plus one encode", len(runner.calls))
	}
	version := runner.calls[0]
	if version[0] != "ffmpeg" || version[1] != "-version" {
		t.Fatalf("first call = %v, want version check", version)
	}
	if !hasArg(runner.calls[1], "copy") {
		t.Fatalf("encode args = %v, want stream copy", runner.calls[1])
	}
}

// TestConvertMissingToolShortCircuits checks that a failed version probe
// produces the install hint and skips the encode entirely.
func TestConvertMissingToolShortCircuits(t *testing.T) {
	runner := &fakeStreamRunner{
		run: func(call int, onLine func(string)) (streamResult, error) {
			return streamResult{ExitCode: -1}, errors.New("exec: \"ffmpeg\": executable file not found in $PATH")
		},
	}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{InputPath: "/in/clip.mp4", OutputPath: "/out/clip.mp4", PassMode: domain.SinglePass}
	err := converter.Convert(context.Background(), job, sourceWithAudio(60), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var cErr *ConvertError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *ConvertError", err)
	}
	if cErr.Message != "ffmpeg is not installed or not found in system PATH" {
		t.Fatalf("message = %q", cErr.Message)
	}
	if len(runner.calls) != 1 {
		t.Fatalf("calls = %d, want the version check only", len(runner.calls))
	}
}

// TestConvertNonzeroExitReturnsToolError checks the failure message shape.
func TestConvertNonzeroExitReturnsToolError(t *testing.T) {
	runner := &fakeStreamRunner{}
	runner.run = func(call int, onLine func(string)) (streamResult, error) {
		if call == 0 {
			return streamResult{}, nil
		}
		return streamResult{Stderr: "boom\n", ExitCode: 1}, errors.New("exit status 1")
	}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{InputPath: "/in/clip.mp4", OutputPath: "/out/clip.mp4", PassMode: domain.SinglePass}
	err := converter.Convert(context.Background(), job, sourceWithAudio(60), nil)
	if err == nil {
		t.Fatal("expected error")
	}

	var cErr *ConvertError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *ConvertError", err)
	}
	if cErr.Message != "FFmpeg error (code 1): boom" {
		t.Fatalf("message = %q", cErr.Message)
	}
	if cErr.ExitCode != 1 {
		t.Fatalf("exit code = %d, want 1", cErr.ExitCode)
	}
	if cErr.Path != "/in/clip.mp4" {
		t.Fatalf("path = %q", cErr.Path)
	}
}

// TestConvertTwoPassRunsBothPassesAndCleansLogs checks pass ordering,
// progress confinement to the final pass, and statistics file cleanup.
func TestConvertTwoPassRunsBothPassesAndCleansLogs(t *testing.T) {
	runner := &fakeStreamRunner{}
	runner.run = func(call int, onLine func(string)) (streamResult, error) {
		switch call {
		case 1:
			if onLine != nil {
				return streamResult{}, fmt.Errorf("analysis pass must not report progress")
			}
		case 2:
			if onLine == nil {
				return streamResult{}, fmt.Errorf("final pass must report progress")
			}
			onLine("frame=  100 fps= 50 q=28.0 size=    1024KiB time=00:00:45.00 bitrate=1638.4kbits/s")
		}
		return streamResult{}, nil
	}

	var removed []string
	converter := NewConverterForTests("ffmpeg", runner, func(name string) error {
		removed = append(removed, name)
		return nil
	})

	job := domain.Job{
		InputPath:       "/in/clip.mkv",
		OutputPath:      "/out/clip.mkv",
		AudioPolicy:     domain.AudioStrip,
		TargetSizeBytes: 10_000_000,
		PassMode:        domain.TwoPass,
	}

	var percents []int
	err := converter.Convert(context.Background(), job, sourceWithAudio(90), func(p int) {
		percents = append(percents, p)
	})
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if len(runner.calls) != 3 {
		t.Fatalf("calls = %d, want version check plus two passes", len(runner.calls))
	}
	if got := argValue(runner.calls[1], "-pass"); got != "1" {
		t.Fatalf("second call -pass = %q, want 1", got)
	}
	if got := argValue(runner.calls[2], "-pass"); got != "2" {
		t.Fatalf("third call -pass = %q, want 2", got)
	}
	if len(percents) != 1 || percents[0] != 50 {
		t.Fatalf("percents = %v, want [50]", percents)
	}

	prefix := argValue(runner.calls[1], "-passlogfile")
	if filepath.Base(prefix) != "ffmpeg2pass-clip" {
		t.Fatalf("pass log prefix = %q", prefix)
	}
	wantRemoved := []string{prefix + "-0.log", prefix + "-0.log.mbtree"}
	if len(removed) != len(wantRemoved) {
		t.Fatalf("removed = %v, want %v", removed, wantRemoved)
	}
	for i := range wantRemoved {
		if removed[i] != wantRemoved[i] {
			t.Fatalf("removed = %v, want %v", removed, wantRemoved)
		}
	}
}

// TestConvertCancelledContextReturnsContextError checks that a kill via
// cancellation is not rewrapped as a tool failure.
func TestConvertCancelledContextReturnsContextError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runner := &fakeStreamRunner{}
	runner.run = func(call int, onLine func(string)) (streamResult, error) {
		if call == 0 {
			return streamResult{}, nil
		}
		cancel()
		return streamResult{ExitCode: -1}, errors.New("signal: killed")
	}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{InputPath: "/in/clip.mp4", OutputPath: "/out/clip.mp4", PassMode: domain.SinglePass}
	err := converter.Convert(ctx, job, sourceWithAudio(60), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}

	var cErr *ConvertError
	if errors.As(err, &cErr) {
		t.Fatalf("cancellation must not surface as a tool error, got %v", cErr)
	}
}

// TestConvertUnknownDurationSkipsAllInvocations checks that planning fails
// before the version check or any encode runs.
func TestConvertUnknownDurationSkipsAllInvocations(t *testing.T) {
	runner := &fakeStreamRunner{}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{InputPath: "/in/odd.webm", OutputPath: "/out/odd.webm", PassMode: domain.SinglePass}
	err := converter.Convert(context.Background(), job, probe.Result{DurationSeconds: 0}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "could not determine video duration") {
		t.Fatalf("error = %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("calls = %d, want none", len(runner.calls))
	}
}

// TestConvertLeavesJobUnchanged checks the job value is treated as
// read-only even through the resize pointer.
func TestConvertLeavesJobUnchanged(t *testing.T) {
	runner := &fakeStreamRunner{}
	converter := NewConverterForTests("ffmpeg", runner, func(string) error { return nil })

	job := domain.Job{
		InputPath:       "/in/clip.mp4",
		OutputPath:      "/out/clip.mp4",
		AudioPolicy:     domain.AudioCopy,
		TargetSizeBytes: 50_000_000,
		Resize:          &domain.ResizeSpec{Width: 1280, Height: 720, AspectMode: domain.AspectPad},
		PassMode:        domain.SinglePass,
	}
	snapshot := job
	resizeSnapshot := *job.Resize

	if err := converter.Convert(context.Background(), job, sourceWithAudio(60), nil); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}

	if job != snapshot {
		t.Fatalf("job = %+v, want %+v", job, snapshot)
	}
	if *job.Resize != resizeSnapshot {
		t.Fatalf("resize = %+v, want %+v", *job.Resize, resizeSnapshot)
	}
}

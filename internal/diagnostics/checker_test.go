package diagnostics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"video-converter/internal/domain"
)

// testChecker returns a checker with a fake binary resolver and real
// filesystem hooks.
func testChecker(resolve func(string) (string, error)) *Checker {
	return &Checker{
		resolveBinary: resolve,
		ensureDir:     os.MkdirAll,
		createScratch: os.CreateTemp,
		removeScratch: os.Remove,
	}
}

func TestCheckerRunAllPass(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "output")
	checker := testChecker(func(name string) (string, error) {
		return "/usr/local/bin/" + name, nil
	})

	report := checker.Run(domain.Settings{
		OutputDir:   outputDir,
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
	})

	if report.HasFailures {
		t.Fatalf("expected no failures, got %+v", report.Items)
	}
	if len(report.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(report.Items))
	}

	// The write probe must clean up after itself.
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("output dir not empty after probe: %v", entries)
	}
}

func TestCheckerRunMissingToolsAndPaths(t *testing.T) {
	checker := testChecker(func(string) (string, error) {
		return "", errors.New("not found")
	})

	report := checker.Run(domain.Settings{OutputDir: ""})

	if !report.HasFailures {
		t.Fatal("expected failures")
	}
	assertStatusByID(t, report, "tool_ffmpeg", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "tool_ffprobe", domain.DiagnosticStatusFail)
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
}

// TestCheckerHonorsConfiguredToolPaths checks explicit settings paths are
// resolved instead of the bare tool names.
func TestCheckerHonorsConfiguredToolPaths(t *testing.T) {
	var requested []string
	checker := testChecker(func(target string) (string, error) {
		requested = append(requested, target)
		return target, nil
	})

	checker.Run(domain.Settings{
		OutputDir:   t.TempDir(),
		FFmpegPath:  "/opt/ffmpeg/bin/ffmpeg",
		FFprobePath: "",
	})

	if len(requested) != 2 {
		t.Fatalf("lookups = %v, want 2", requested)
	}
	if requested[0] != "/opt/ffmpeg/bin/ffmpeg" {
		t.Fatalf("ffmpeg lookup = %q, want configured path", requested[0])
	}
	if requested[1] != "ffprobe" {
		t.Fatalf("ffprobe lookup = %q, want bare name fallback", requested[1])
	}
}

func TestCheckerReportsUnwritableOutputDir(t *testing.T) {
	checker := &Checker{
		resolveBinary: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		ensureDir:     func(string, os.FileMode) error { return nil },
		createScratch: func(string, string) (*os.File, error) { return nil, errors.New("permission denied") },
		removeScratch: os.Remove,
	}

	report := checker.Run(domain.Settings{OutputDir: "/locked"})

	if !report.HasFailures {
		t.Fatal("expected a failure for the unwritable directory")
	}
	assertStatusByID(t, report, "output_dir", domain.DiagnosticStatusFail)
	for _, item := range report.Items {
		if item.ID == "output_dir" && !strings.Contains(item.Message, "not writable") {
			t.Fatalf("message = %q, want write failure", item.Message)
		}
	}
}

// assertStatusByID checks status for one diagnostic item by ID.
func assertStatusByID(t *testing.T, report domain.DiagnosticReport, id string, want domain.DiagnosticStatus) {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			if item.Status != want {
				t.Fatalf("item %s: got %s, want %s", id, item.Status, want)
			}
			return
		}
	}
	t.Fatalf("diagnostic item not found: %s", id)
}

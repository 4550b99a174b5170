package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"video-converter/internal/domain"
)

// Checker inspects the host for the external tools and writable paths a
// conversion needs. The OS hooks are swappable so tests can simulate broken
// machines.
type Checker struct {
	resolveBinary func(string) (string, error)
	ensureDir     func(string, os.FileMode) error
	createScratch func(dir, pattern string) (*os.File, error)
	removeScratch func(string) error
}

// NewChecker wires the startup checks to the real OS.
func NewChecker() *Checker {
	return &Checker{
		resolveBinary: exec.LookPath,
		ensureDir:     os.MkdirAll,
		createScratch: os.CreateTemp,
		removeScratch: os.Remove,
	}
}

// Run evaluates every startup check against the given settings.
func (c *Checker) Run(settings domain.Settings) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg", settings.FFmpegPath),
		c.checkTool("ffprobe", settings.FFprobePath),
		c.checkOutputDir(settings.OutputDir),
	}
	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: anyFailed(items),
		Items:       items,
	}
}

// checkTool resolves one required executable. An explicit settings path is
// looked up as given; an empty setting falls back to the bare tool name on
// PATH. LookPath covers both.
func (c *Checker) checkTool(name, configured string) domain.DiagnosticItem {
	id := "tool_" + name
	target := strings.TrimSpace(configured)
	if target == "" {
		target = name
	}

	resolved, err := c.resolveBinary(target)
	if err == nil {
		return pass(id, name, "Found at "+resolved)
	}

	message := fmt.Sprintf("Tool not found in PATH: %s", name)
	if target != name {
		message = fmt.Sprintf("Configured binary not found: %s", target)
	}
	return fail(id, name, message, "Install FFmpeg or point settings at the binary location.")
}

// checkOutputDir confirms the output directory exists (creating it when
// missing) and accepts new files.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	const id = "output_dir"
	const label = "Output directory"

	target := strings.TrimSpace(outputDir)
	if target == "" {
		return fail(id, label, "Output directory is empty.",
			"Set an output directory where converted videos can be written.")
	}
	if err := c.ensureDir(target, 0o755); err != nil {
		return fail(id, label, fmt.Sprintf("Cannot create output directory: %s", target),
			"Choose a writable location or adjust filesystem permissions.")
	}
	if err := c.probeWrite(target); err != nil {
		return fail(id, label, fmt.Sprintf("Output directory is not writable: %s", target),
			"Choose a writable directory for converted output.")
	}
	return pass(id, label, "Writable directory: "+target)
}

// probeWrite creates and deletes a scratch file to prove write access.
func (c *Checker) probeWrite(dir string) error {
	scratch, err := c.createScratch(dir, ".write-check-*")
	if err != nil {
		return err
	}
	name := scratch.Name()
	_ = scratch.Close()
	_ = c.removeScratch(name)
	return nil
}

func anyFailed(items []domain.DiagnosticItem) bool {
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			return true
		}
	}
	return false
}

func pass(id, name, message string) domain.DiagnosticItem {
	return domain.DiagnosticItem{ID: id, Name: name, Status: domain.DiagnosticStatusPass, Message: message}
}

func fail(id, name, message, hint string) domain.DiagnosticItem {
	return domain.DiagnosticItem{ID: id, Name: name, Status: domain.DiagnosticStatusFail, Message: message, Hint: hint}
}

package convert

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"video-converter/internal/domain"
	"video-converter/internal/probe"
)

// Bitrate clamp bounds for size-targeted encodes, in kilobits per second.
const (
	minBitrateKbps = 100
	maxBitrateKbps = 8000
)

// Plan holds the ffmpeg invocations for one job: a single element for
// direct runs, two for two-pass encodes (throwaway analysis pass first).
type Plan struct {
	Passes        [][]string
	PassLogPrefix string
}

// TwoPass reports whether the plan carries an analysis pass.
func (p Plan) TwoPass() bool {
	return len(p.Passes) == 2
}

// BuildPlan constructs the ffmpeg invocation(s) for one job against its
// probed source metadata. Construction is fully deterministic; the external
// tool is never consulted. A zero source duration is a precondition failure
// and no invocation is planned.
func BuildPlan(job domain.Job, source probe.Result) (Plan, error) {
	if source.DurationSeconds == 0 {
		return Plan{}, &ConvertError{
			Path:    job.InputPath,
			Message: "could not determine video duration",
		}
	}

	base := []string{"-y", "-i", job.InputPath}
	resized := job.Resize != nil

	filterArgs := []string{}
	if resized {
		filterArgs = []string{"-vf", resizeFilter(*job.Resize)}
	}

	audio := audioArgs(job.AudioPolicy, resized, source.HasAudio())

	if job.TargetSizeBytes > 0 {
		bitrate := fmt.Sprintf("%dk", targetBitrateKbps(job.TargetSizeBytes, source.DurationSeconds))

		if job.PassMode == domain.TwoPass {
			prefix := passLogPrefix(job.OutputPath)

			first := append([]string{}, base...)
			first = append(first, filterArgs...)
			first = append(first,
				"-c:v", "libx264",
				"-b:v", bitrate,
				"-pass", "1",
				"-passlogfile", prefix,
				"-an",
				"-f", "null", os.DevNull,
			)

			final := append([]string{}, base...)
			final = append(final, filterArgs...)
			final = append(final,
				"-c:v", "libx264",
				"-b:v", bitrate,
				"-maxrate", bitrate,
				"-pass", "2",
				"-passlogfile", prefix,
			)
			final = append(final, audio...)
			final = append(final, job.OutputPath)

			return Plan{Passes: [][]string{first, final}, PassLogPrefix: prefix}, nil
		}

		args := append([]string{}, base...)
		args = append(args, filterArgs...)
		args = append(args, "-c:v", "libx264", "-b:v", bitrate, "-crf", "23")
		args = append(args, audio...)
		args = append(args, job.OutputPath)
		return Plan{Passes: [][]string{args}}, nil
	}

	args := append([]string{}, base...)
	if resized {
		args = append(args, filterArgs...)
		args = append(args, "-c:v", "libx264")
	} else {
		args = append(args, "-c:v", "copy")
	}
	args = append(args, audio...)
	args = append(args, job.OutputPath)
	return Plan{Passes: [][]string{args}}, nil
}

// targetBitrateKbps fits the requested output size into the known duration.
// The whole requested size is allotted to video; audio bitrate is not
// subtracted from it. The result is clamped to [100, 8000] kbps.
func targetBitrateKbps(targetSizeBytes int64, durationSeconds float64) int {
	bitrate := int(float64(targetSizeBytes) * 8 / (durationSeconds * 1000))
	if bitrate < minBitrateKbps {
		return minBitrateKbps
	}
	if bitrate > maxBitrateKbps {
		return maxBitrateKbps
	}
	return bitrate
}

// resizeFilter renders the scale/pad or scale/crop filter chain for the
// target dimensions. Pad letterboxes with black bars and only upscales when
// allowed; crop always scales up far enough to fill the target frame.
func resizeFilter(spec domain.ResizeSpec) string {
	if spec.AspectMode == domain.AspectCrop {
		return fmt.Sprintf(
			"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d",
			spec.Width, spec.Height, spec.Width, spec.Height,
		)
	}

	aspect := "decrease"
	if spec.AllowUpscale {
		aspect = "increase"
	}
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=%s,pad=%d:%d:(ow-iw)/2:(oh-ih)/2:color=black",
		spec.Width, spec.Height, aspect, spec.Width, spec.Height,
	)
}

// audioArgs maps the audio policy onto ffmpeg arguments. Copy is replaced
// by an AAC transcode when a resize forces a video re-encode or the source
// has no audio stream: both make a stream copy an invalid request.
func audioArgs(policy domain.AudioPolicy, resized, hasAudio bool) []string {
	if policy == "" {
		policy = domain.AudioCopy
	}
	if policy == domain.AudioCopy && (resized || !hasAudio) {
		policy = domain.AudioTranscodeAAC
	}

	switch policy {
	case domain.AudioTranscodeAAC:
		return []string{"-c:a", "aac", "-b:a", "192k"}
	case domain.AudioTranscodeMP3:
		return []string{"-c:a", "libmp3lame", "-b:a", "192k"}
	case domain.AudioStrip:
		return []string{"-an"}
	default:
		return []string{"-c:a", "copy"}
	}
}

// passLogPrefix places two-pass statistics files in the system temp
// directory, keyed by the output file name.
func passLogPrefix(outputPath string) string {
	base := filepath.Base(outputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(os.TempDir(), "ffmpeg2pass-"+stem)
}

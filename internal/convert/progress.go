package convert

import (
	"regexp"
	"strconv"
)

// timePattern matches the elapsed-time token ffmpeg prints on its stats
// line, e.g. "frame=10 fps=25 q=28.0 size=256kB time=00:01:30.50 bitrate=...".
var timePattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)

// parseProgressLine extracts elapsed encoded seconds from one line of the
// ffmpeg diagnostic stream. Lines without a well-formed time= token return
// ok=false; scraping garbage must only skip a notification, never fail.
func parseProgressLine(line string) (float64, bool) {
	match := timePattern.FindStringSubmatch(line)
	if match == nil {
		return 0, false
	}

	hours, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.ParseFloat(match[2], 64)
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[3], 64)
	if err != nil {
		return 0, false
	}

	return hours*3600 + minutes*60 + seconds, true
}

// progressPercent converts elapsed seconds into a 0-100 completion figure,
// clamped at 100 for tools that report past the probed duration.
func progressPercent(elapsed, duration float64) int {
	if duration <= 0 {
		return 0
	}

	percent := int(elapsed / duration * 100)
	if percent > 100 {
		return 100
	}
	if percent < 0 {
		return 0
	}
	return percent
}

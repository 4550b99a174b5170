package config

import (
	"os"
	"path/filepath"

	"video-converter/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
// Tool paths default to bare names so PATH lookup applies.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:   filepath.Join(homeDir, "Videos", "Converted"),
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		LogLevel:    "info",
	}
}

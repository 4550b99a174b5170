package bootstrap

import "video-converter/internal/domain"

var resizePresetCatalog = []domain.ResizePreset{
	{
		ID:          "1080p",
		Name:        "Full HD (1080p)",
		Width:       1920,
		Height:      1080,
		Description: "1920x1080, 16:9 landscape.",
	},
	{
		ID:          "720p",
		Name:        "HD (720p)",
		Width:       1280,
		Height:      720,
		Description: "1280x720, 16:9 landscape.",
	},
	{
		ID:          "480p",
		Name:        "SD (480p)",
		Width:       854,
		Height:      480,
		Description: "854x480, 16:9 landscape.",
	},
	{
		ID:          "portrait-1080",
		Name:        "Portrait (1080x1920)",
		Width:       1080,
		Height:      1920,
		Description: "9:16 vertical framing for mobile.",
	},
	{
		ID:          "square-1080",
		Name:        "Square (1080x1080)",
		Width:       1080,
		Height:      1080,
		Description: "1:1 square framing.",
	},
}

// GetResizePresets returns built-in resize targets for the resize picker.
func (a *App) GetResizePresets() []domain.ResizePreset {
	presets := make([]domain.ResizePreset, len(resizePresetCatalog))
	copy(presets, resizePresetCatalog)
	return presets
}

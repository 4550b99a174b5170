package domain

// ResizePreset is one built-in target resolution offered by the UI.
type ResizePreset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Description string `json:"description,omitempty"`
}

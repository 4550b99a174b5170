package logging

import "go.uber.org/zap"

// WailsAdapter bridges desktop framework log messages onto a zap logger so
// they land in the same stream as application logs. It satisfies the Wails
// logger interface.
type WailsAdapter struct {
	sugar *zap.SugaredLogger
}

// NewWailsAdapter wraps a zap logger for use as the Wails runtime logger.
func NewWailsAdapter(logger *zap.Logger) *WailsAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WailsAdapter{sugar: logger.Named("wails").Sugar()}
}

func (a *WailsAdapter) Print(message string)   { a.sugar.Info(message) }
func (a *WailsAdapter) Trace(message string)   { a.sugar.Debug(message) }
func (a *WailsAdapter) Debug(message string)   { a.sugar.Debug(message) }
func (a *WailsAdapter) Info(message string)    { a.sugar.Info(message) }
func (a *WailsAdapter) Warning(message string) { a.sugar.Warn(message) }
func (a *WailsAdapter) Error(message string)   { a.sugar.Error(message) }
func (a *WailsAdapter) Fatal(message string)   { a.sugar.Fatal(message) }

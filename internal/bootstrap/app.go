package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"go.uber.org/zap"

	"video-converter/internal/config"
	"video-converter/internal/convert"
	"video-converter/internal/diagnostics"
	"video-converter/internal/domain"
	"video-converter/internal/jobs"
	"video-converter/internal/logging"
	"video-converter/internal/probe"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var supportedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".mkv":  true,
	".avi":  true,
	".webm": true,
}

// batchRunner executes a batch of jobs and streams lifecycle events back.
type batchRunner interface {
	Run(ctx context.Context, batch []domain.Job) <-chan jobs.Event
}

// App wires configuration, batch state, conversion workers, and UI runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Batches     *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	logger      *zap.Logger

	mu            sync.Mutex
	probes        *probe.Cache
	activeBatchID string
	cancel        context.CancelFunc
	events        *jobs.EventBus
	runtimeCtx    context.Context
	now           func() time.Time
	newRunner     func(settings domain.Settings) batchRunner
}

// New builds the application without embedded frontend assets (dev mode).
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and its dependency graph.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return nil, fmt.Errorf("prepare local bin directory: %w", err)
	}

	store := config.NewFileStore(filepath.Join(homeDir, ".video-converter", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	environment := "production"
	if assets == nil {
		environment = "development"
	}
	logger, err := logging.NewLogger(settings.LogLevel, environment)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	checker := diagnostics.NewChecker()

	app := &App{
		Settings:    settings,
		Store:       store,
		Batches:     jobs.NewManager(),
		Diagnostics: checker.Run(settings),
		assets:      assets,
		checker:     checker,
		logger:      logger,
		probes:      probe.NewCache(probe.NewProber(settings.FFprobePath, logger)),
		events:      jobs.NewEventBus(1000),
		now:         time.Now,
	}
	app.newRunner = func(settings domain.Settings) batchRunner {
		converter := convert.NewConverter(settings.FFmpegPath, app.logger)
		return jobs.NewRunner(app.probeCache(), converter, app.logger)
	}
	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "Video Converter",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		Logger:      logging.NewWailsAdapter(a.logger),
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			a.runtimeCtx = nil
			a.mu.Unlock()
			_ = a.logger.Sync()
		},
		Bind: []interface{}{a},
	})
}

// Startup stores Wails runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the most recent environment check results.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics re-runs environment checks against saved settings.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	return a.refreshDiagnosticsFromSettings(settings), nil
}

// GetSettings loads persisted settings, applying defaults for missing fields.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()
	return settings, nil
}

// SaveSettings persists settings and refreshes diagnostics and the probe cache.
func (a *App) SaveSettings(settings domain.Settings) error {
	settings = normalizeSettings(settings)
	if err := a.Store.Save(settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if settings.FFprobePath != a.Settings.FFprobePath {
		a.probes = probe.NewCache(probe.NewProber(settings.FFprobePath, a.logger))
	}
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return nil
}

func (a *App) probeCache() *probe.Cache {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.probes
}

// ProbeFile inspects one media file and returns its stream metadata.
func (a *App) ProbeFile(path string) (probe.Result, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return probe.Result{}, fmt.Errorf("file path is empty")
	}
	return a.probeCache().Probe(context.Background(), trimmed)
}

// ClearProbeCache drops all cached metadata results.
func (a *App) ClearProbeCache() {
	a.probeCache().Clear()
}

// StartConversion queues a batch of files and begins converting in the background.
func (a *App) StartConversion(inputPaths []string, options domain.ConversionOptions) (domain.Batch, error) {
	if len(inputPaths) == 0 {
		return domain.Batch{}, fmt.Errorf("no input files selected")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.Batch{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	batch, err := a.buildJobs(inputPaths, options, settings.OutputDir)
	if err != nil {
		return domain.Batch{}, err
	}

	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return domain.Batch{}, fmt.Errorf("create output directory: %w", err)
	}

	batchID := uuid.NewString()
	if err := a.Batches.Start(batchID, len(batch)); err != nil {
		return domain.Batch{}, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	a.mu.Lock()
	a.Settings = settings
	a.activeBatchID = batchID
	a.cancel = cancel
	a.mu.Unlock()

	cache := a.probeCache()
	for _, job := range batch {
		cache.Invalidate(job.OutputPath)
	}

	a.logger.Info("batch started",
		zap.String("batchId", batchID),
		zap.Int("files", len(batch)))

	events := a.newRunner(settings).Run(ctx, batch)
	go a.forwardBatchEvents(batchID, events)

	return a.Batches.Current(), nil
}

func (a *App) buildJobs(inputPaths []string, options domain.ConversionOptions, outputDir string) ([]domain.Job, error) {
	date := a.currentTime().Format("2006-01-02")

	formatExt, err := normalizeOutputFormat(options.OutputFormat)
	if err != nil {
		return nil, err
	}

	batch := make([]domain.Job, 0, len(inputPaths))
	for _, inputPath := range inputPaths {
		trimmed := strings.TrimSpace(inputPath)
		if trimmed == "" {
			return nil, fmt.Errorf("input path is empty")
		}

		ext := strings.ToLower(filepath.Ext(trimmed))
		if !supportedExtensions[ext] {
			return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(trimmed))
		}

		outExt := ext
		if formatExt != "" {
			outExt = formatExt
		}

		stem := strings.TrimSuffix(filepath.Base(trimmed), filepath.Ext(trimmed))
		outputPath := filepath.Join(outputDir, fmt.Sprintf("%s_%s%s", stem, date, outExt))

		batch = append(batch, domain.Job{
			InputPath:       trimmed,
			OutputPath:      outputPath,
			AudioPolicy:     options.AudioPolicy,
			TargetSizeBytes: options.TargetSizeBytes,
			Resize:          cloneResize(options.Resize),
			PassMode:        options.PassMode,
		})
	}
	return batch, nil
}

// normalizeOutputFormat maps a requested container name to a file extension.
// An empty request keeps each file's source container.
func normalizeOutputFormat(format string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	name = strings.TrimPrefix(name, ".")
	if name == "" {
		return "", nil
	}
	ext := "." + name
	if !supportedExtensions[ext] {
		return "", fmt.Errorf("unsupported output format: %s", name)
	}
	return ext, nil
}

func (a *App) currentTime() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

func cloneResize(spec *domain.ResizeSpec) *domain.ResizeSpec {
	if spec == nil {
		return nil
	}
	copied := *spec
	return &copied
}

// forwardBatchEvents pumps runner events onto the bus until the batch settles.
func (a *App) forwardBatchEvents(batchID string, events <-chan jobs.Event) {
	finished := false
	for event := range events {
		if event.Type == jobs.EventTypeBatchFinished {
			finished = true
			if err := a.Batches.Transition(domain.BatchStatusCompleted); err != nil {
				a.logger.Warn("batch completion transition failed",
					zap.String("batchId", batchID),
					zap.Error(err))
			}
		}
		a.publishEvent(event)
	}

	if !finished {
		if err := a.Batches.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningBatch) {
			a.logger.Warn("batch cancel transition failed",
				zap.String("batchId", batchID),
				zap.Error(err))
		}
	}

	a.logger.Info("batch settled",
		zap.String("batchId", batchID),
		zap.Bool("completed", finished))
	a.clearActiveBatch(batchID)
}

// CancelConversion stops the running batch. Jobs already written stay on disk.
func (a *App) CancelConversion() error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	if cancel == nil {
		return jobs.ErrNoRunningBatch
	}
	cancel()

	if err := a.Batches.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningBatch) {
		return err
	}
	return nil
}

// CurrentBatch reports the most recent batch state.
func (a *App) CurrentBatch() domain.Batch {
	return a.Batches.Current()
}

// BatchEvents returns events with sequence numbers greater than sinceSeq.
func (a *App) BatchEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "batch:event", published)
	}
}

func (a *App) clearActiveBatch(batchID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeBatchID != batchID {
		return
	}
	a.activeBatchID = ""
	a.cancel = nil
}

// OpenOutputFolder opens the given path (or configured output dir) in file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open file manager: %w", err)
	}
	return nil
}

func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.FFmpegPath = strings.TrimSpace(settings.FFmpegPath)
	settings.FFprobePath = strings.TrimSpace(settings.FFprobePath)
	settings.LogLevel = strings.TrimSpace(settings.LogLevel)

	defaults := config.DefaultSettings()
	if settings.OutputDir == "" {
		settings.OutputDir = defaults.OutputDir
	}
	if settings.FFmpegPath == "" {
		settings.FFmpegPath = defaults.FFmpegPath
	}
	if settings.FFprobePath == "" {
		settings.FFprobePath = defaults.FFprobePath
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	return settings
}

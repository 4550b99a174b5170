package bootstrap

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"

	"video-converter/internal/config"
	"video-converter/internal/domain"
)

const (
	installCommandTimeout  = 45 * time.Minute
	downloadToolTimeout    = 30 * time.Minute
	metadataRequestTimeout = time.Minute

	ffmpegReleaseMetadataURL = "https://api.github.com/repos/BtbN/FFmpeg-Builds/releases/latest"
)

// installRecipe is one package-manager route to ffmpeg. Steps run in order;
// each step is a whitespace-separated command line.
type installRecipe struct {
	requires string
	steps    []string
}

// systemPackageManagers need root on Linux; installs through them are
// retried under pkexec or sudo when the plain run fails.
var systemPackageManagers = map[string]bool{
	"apt-get": true,
	"dnf":     true,
	"pacman":  true,
	"zypper":  true,
}

// InstallOrFixDiagnostic applies an OS-specific remediation for one failed
// diagnostic item and returns the re-run report.
func (a *App) InstallOrFixDiagnostic(itemID string) (domain.DiagnosticReport, error) {
	if a.Store == nil {
		return domain.DiagnosticReport{}, fmt.Errorf("settings store is not configured")
	}

	id := strings.TrimSpace(itemID)
	if id == "" {
		return domain.DiagnosticReport{}, fmt.Errorf("diagnostic item id is required")
	}

	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}
	settings = normalizeSettings(settings)

	settingsChanged := false
	var fixErr error

	switch id {
	case "tool_ffmpeg", "tool_ffprobe":
		fixErr = installFFmpeg()
	case "output_dir":
		settings, settingsChanged, fixErr = installOrFixOutputDir(settings)
	default:
		return domain.DiagnosticReport{}, fmt.Errorf("unsupported diagnostic item id: %s", id)
	}

	if settingsChanged {
		if saveErr := a.Store.Save(settings); saveErr != nil {
			report := a.refreshDiagnosticsFromSettings(settings)
			return report, fmt.Errorf("save settings after fix: %w", saveErr)
		}
	}

	report := a.refreshDiagnosticsFromSettings(settings)
	if fixErr != nil {
		return report, fixErr
	}
	return report, nil
}

func (a *App) refreshDiagnosticsFromSettings(settings domain.Settings) domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Settings = settings
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(settings)
	}
	return a.Diagnostics
}

// ensureLocalBinOnPATH prepends the app-local bin directory to PATH so
// binaries staged by remediation win lookups for this process.
func ensureLocalBinOnPATH(homeDir string) error {
	binDir := localBinDir(homeDir)
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return err
	}

	current := os.Getenv("PATH")
	for _, entry := range filepath.SplitList(current) {
		if filepath.Clean(entry) == filepath.Clean(binDir) {
			return nil
		}
	}

	if current == "" {
		return os.Setenv("PATH", binDir)
	}
	return os.Setenv("PATH", binDir+string(os.PathListSeparator)+current)
}

func localBinDir(homeDir string) string {
	return filepath.Join(homeDir, ".video-converter", "bin")
}

// ffmpegRecipes lists the install routes for the current OS, most
// preferred first.
func ffmpegRecipes() []installRecipe {
	switch goruntime.GOOS {
	case "windows":
		return []installRecipe{
			{requires: "winget", steps: []string{"winget install --id Gyan.FFmpeg --exact --accept-source-agreements --accept-package-agreements"}},
			{requires: "choco", steps: []string{"choco install ffmpeg -y"}},
			{requires: "scoop", steps: []string{"scoop install ffmpeg"}},
		}
	case "darwin":
		return []installRecipe{
			{requires: "brew", steps: []string{"brew install ffmpeg"}},
		}
	default:
		return []installRecipe{
			{requires: "apt-get", steps: []string{"apt-get update", "apt-get install -y ffmpeg"}},
			{requires: "dnf", steps: []string{"dnf install -y ffmpeg"}},
			{requires: "pacman", steps: []string{"pacman -Sy --noconfirm ffmpeg"}},
			{requires: "zypper", steps: []string{"zypper install -y ffmpeg"}},
			{requires: "brew", steps: []string{"brew install ffmpeg"}},
		}
	}
}

// installFFmpeg puts ffmpeg and ffprobe on PATH through the first usable
// package manager, falling back to a static release build on Windows.
func installFFmpeg() error {
	installErr := applyFirstRecipe(ffmpegRecipes())
	if installErr == nil && verifyOnPath("ffmpeg", "ffprobe") == nil {
		return nil
	}

	if goruntime.GOOS == "windows" {
		if err := installWindowsReleaseBuild(); err != nil {
			if installErr != nil {
				installErr = fmt.Errorf("%v; release fallback: %w", installErr, err)
			} else {
				installErr = fmt.Errorf("release fallback: %w", err)
			}
		}
	}

	if err := verifyOnPath("ffmpeg", "ffprobe"); err != nil {
		if installErr != nil {
			return fmt.Errorf("install ffmpeg/ffprobe: %v; %w", installErr, err)
		}
		return err
	}
	return nil
}

// applyFirstRecipe runs recipes in order until one whose package manager is
// present completes every step.
func applyFirstRecipe(recipes []installRecipe) error {
	var attempts []string
	managerFound := false

	for _, recipe := range recipes {
		if !toolOnPath(recipe.requires) {
			continue
		}
		managerFound = true
		if err := runRecipe(recipe); err != nil {
			attempts = append(attempts, fmt.Sprintf("%s: %v", recipe.requires, err))
			continue
		}
		return nil
	}

	if !managerFound {
		return fmt.Errorf("no supported package manager found for %s", goruntime.GOOS)
	}
	return errors.New(strings.Join(attempts, "; "))
}

func runRecipe(recipe installRecipe) error {
	for _, step := range recipe.steps {
		if err := runPrivileged(strings.Fields(step)); err != nil {
			return err
		}
	}
	return nil
}

// runPrivileged runs one install step, retrying through pkexec then sudo on
// Linux when the package manager needs root.
func runPrivileged(argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty install step")
	}

	variants := [][]string{argv}
	if goruntime.GOOS == "linux" && systemPackageManagers[argv[0]] {
		if toolOnPath("pkexec") {
			variants = append(variants, append([]string{"pkexec"}, argv...))
		}
		if toolOnPath("sudo") {
			variants = append(variants, append([]string{"sudo", "-n"}, argv...))
		}
	}

	var attempts []string
	for _, variant := range variants {
		err := runInstallStep(variant)
		if err == nil {
			return nil
		}
		attempts = append(attempts, err.Error())
	}
	return errors.New(strings.Join(attempts, "; "))
}

func runInstallStep(argv []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), installCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	step := strings.Join(argv, " ")
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out after %s", step, installCommandTimeout)
	}

	detail := strings.TrimSpace(string(output))
	if len(detail) > 500 {
		detail = detail[:500] + "..."
	}
	if detail == "" {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%s: %w (%s)", step, err, detail)
}

func toolOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

func verifyOnPath(names ...string) error {
	var missing []string
	for _, name := range names {
		if !toolOnPath(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

type releaseAsset struct {
	Name string `json:"name"`
	URL  string `json:"browser_download_url"`
}

type githubRelease struct {
	TagName string         `json:"tag_name"`
	Assets  []releaseAsset `json:"assets"`
}

// installWindowsReleaseBuild stages the latest static FFmpeg build from the
// BtbN archive into the app-local bin directory.
func installWindowsReleaseBuild() error {
	release, err := fetchReleaseMetadata(ffmpegReleaseMetadataURL)
	if err != nil {
		return fmt.Errorf("fetch FFmpeg release metadata: %w", err)
	}

	assetURL, assetName, err := selectFFmpegWindowsAsset(release)
	if err != nil {
		return err
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("resolve user home: %w", err)
	}

	stageDir := filepath.Join(homeDir, ".video-converter", "tools", "ffmpeg", release.TagName)
	zipPath := filepath.Join(stageDir, assetName)
	if err := downloadToFile(zipPath, assetURL); err != nil {
		return fmt.Errorf("download %s: %w", assetName, err)
	}

	binaries, err := extractFFmpegWindowsZip(zipPath, stageDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", assetName, err)
	}

	if err := ensureLocalBinOnPATH(homeDir); err != nil {
		return err
	}
	binDir := localBinDir(homeDir)
	for name, extractedPath := range binaries {
		if err := copyExecutable(extractedPath, filepath.Join(binDir, name)); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	return nil
}

func fetchReleaseMetadata(url string) (githubRelease, error) {
	ctx, cancel := context.WithTimeout(context.Background(), metadataRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return githubRelease{}, fmt.Errorf("build release metadata request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "video-converter")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return githubRelease{}, fmt.Errorf("request release metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return githubRelease{}, fmt.Errorf("release metadata request returned %s", resp.Status)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return githubRelease{}, fmt.Errorf("decode release metadata: %w", err)
	}
	if strings.TrimSpace(release.TagName) == "" {
		return githubRelease{}, fmt.Errorf("release metadata did not include a tag name")
	}
	return release, nil
}

// selectFFmpegWindowsAsset picks the static win64 build out of a release,
// preferring the gpl zip and refusing shared (DLL) builds.
func selectFFmpegWindowsAsset(release githubRelease) (string, string, error) {
	if len(release.Assets) == 0 {
		return "", "", fmt.Errorf("release %s has no assets", release.TagName)
	}

	var fallbackURL, fallbackName string
	for _, asset := range release.Assets {
		if strings.TrimSpace(asset.URL) == "" {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(asset.Name))
		if strings.Contains(name, "win64-gpl.zip") {
			return asset.URL, asset.Name, nil
		}
		if fallbackURL == "" &&
			strings.HasSuffix(name, ".zip") &&
			strings.Contains(name, "win64") &&
			!strings.Contains(name, "shared") {
			fallbackURL = asset.URL
			fallbackName = asset.Name
		}
	}

	if fallbackURL != "" {
		return fallbackURL, fallbackName, nil
	}
	return "", "", fmt.Errorf("release %s does not contain a supported Windows x64 zip asset", release.TagName)
}

// downloadToFile fetches a URL into destPath, staging through a partial
// file so an interrupted download never leaves a truncated target.
func downloadToFile(destPath, sourceURL string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("prepare download directory: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), downloadToolTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("User-Agent", "video-converter")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download returned %s", resp.Status)
	}

	tmpPath := destPath + ".partial"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}

	_, copyErr := io.Copy(file, resp.Body)
	if closeErr := file.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write staging file: %w", copyErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace download target: %w", err)
	}
	return nil
}

// extractFFmpegWindowsZip unpacks a release archive and locates the ffmpeg
// and ffprobe executables inside it.
func extractFFmpegWindowsZip(zipPath, extractDir string) (map[string]string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	binaries := map[string]string{}
	for _, entry := range reader.File {
		targetPath, err := extractZipEntry(entry, extractDir)
		if err != nil {
			return nil, err
		}
		if targetPath == "" {
			continue
		}
		switch base := strings.ToLower(filepath.Base(targetPath)); base {
		case "ffmpeg.exe", "ffprobe.exe":
			binaries[base] = targetPath
		}
	}

	if binaries["ffmpeg.exe"] == "" || binaries["ffprobe.exe"] == "" {
		return nil, fmt.Errorf("archive does not contain ffmpeg.exe and ffprobe.exe")
	}
	return binaries, nil
}

// extractZipEntry writes one archive entry under extractDir, refusing paths
// that climb out of it. Directory entries return an empty path.
func extractZipEntry(entry *zip.File, extractDir string) (string, error) {
	cleanName := filepath.Clean(entry.Name)
	if cleanName == "." || cleanName == "" {
		return "", nil
	}
	targetPath := filepath.Join(extractDir, cleanName)
	if !isWithinBaseDir(extractDir, targetPath) {
		return "", fmt.Errorf("zip contains invalid path: %s", entry.Name)
	}

	if entry.FileInfo().IsDir() {
		return "", os.MkdirAll(targetPath, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return "", err
	}

	src, err := entry.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, entry.Mode())
	if err != nil {
		return "", err
	}

	_, copyErr := io.Copy(dst, src)
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return "", copyErr
	}
	return targetPath, nil
}

func copyExecutable(sourcePath, destPath string) error {
	src, err := os.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return err
	}

	dst, err := os.OpenFile(destPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm()|0o755)
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(dst, src)
	if closeErr := dst.Close(); copyErr == nil {
		copyErr = closeErr
	}
	return copyErr
}

func isWithinBaseDir(baseDir, targetPath string) bool {
	rel, err := filepath.Rel(filepath.Clean(baseDir), filepath.Clean(targetPath))
	if err != nil {
		return false
	}
	return rel == "." || (rel != "" && !strings.HasPrefix(rel, ".."))
}

func installOrFixOutputDir(settings domain.Settings) (domain.Settings, bool, error) {
	target := strings.TrimSpace(settings.OutputDir)
	changed := false
	if target == "" {
		target = config.DefaultSettings().OutputDir
		settings.OutputDir = target
		changed = true
	}

	if err := os.MkdirAll(target, 0o755); err != nil {
		return settings, changed, fmt.Errorf("create output directory %s: %w", target, err)
	}
	return settings, changed, nil
}

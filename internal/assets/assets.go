// Package assets resolves the on-disk locations of the SDK's default rule
// pack and confusables table, the way a packaged CLI binary finds data
// files it shipped but a developer running from a source checkout finds
// files sitting next to the package source.
//
// Resolution always tries the dev location (relative to this source file,
// useful when running "go run" or tests from a checkout) first, then the
// location packaged alongside the running executable, and finally falls
// back to the copy embedded into the binary at build time.
package assets

import (
	"embed"
	"os"
	"path/filepath"
	"runtime"
)

//go:embed rulepack.default.json confusables.txt
var embedded embed.FS

const (
	// DefaultRulePackName is the filename of the shipped default rule pack.
	DefaultRulePackName = "rulepack.default.json"
	// ConfusablesName is the filename of the shipped UTS#39 confusables table.
	ConfusablesName = "confusables.txt"
)

// devDir returns the directory containing this source file, resolved at
// runtime via runtime.Caller so it still works when the module is vendored
// under a different GOPATH layout.
func devDir() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return ""
	}
	return filepath.Dir(file)
}

// packagedDir returns the "assets" subdirectory of the directory the running
// executable lives in, the location a packaged build ships its data files in.
func packagedDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(exe), "assets")
}

// Resolve returns the filesystem path to name, preferring (in order) the
// dev-checkout location, the packaged-alongside-the-binary location, and
// finally a copy of the embedded asset extracted to a temp file. The
// returned path always exists on disk; callers that need to detect mtime
// changes (the rule pack loader's hot-reload) should prefer a path from one
// of the first two tiers, since the extracted-embed tier is a fixed
// snapshot from build time.
func Resolve(name string) (string, error) {
	if dir := devDir(); dir != "" {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	if dir := packagedDir(); dir != "" {
		candidate := filepath.Join(dir, name)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return extractEmbedded(name)
}

// DefaultRulePackPath resolves the shipped default rule pack's path.
func DefaultRulePackPath() (string, error) {
	return Resolve(DefaultRulePackName)
}

// ConfusablesPath resolves the shipped UTS#39 confusables table's path.
func ConfusablesPath() (string, error) {
	return Resolve(ConfusablesName)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// extractEmbedded writes the embedded copy of name to a stable path under
// the OS temp directory and returns that path, creating it only once.
func extractEmbedded(name string) (string, error) {
	data, err := embedded.ReadFile(name)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(os.TempDir(), "schnabel-audit-assets", name)
	if fileExists(dest) {
		return dest, nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

// Package rawdata resolves telescope run files under a raw-data tree.
//
// Raw files live in nested night directories:
//
//	<root>/YYYY/MM/DD/YYYYMMDD_RRR.fits.<ext>
//
// where ext is "fz" (zfits) or "gz" (gzipped fits). DRS calibration
// files carry a ".drs.fits.gz" suffix and are never event sources.
package rawdata

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fact-project/eventlist/pkg/model"
)

// Extensions, in probe priority order. Only these two candidates are
// ever checked; there is no directory scan.
var Extensions = []string{"fz", "gz"}

// NightDir returns the directory holding a night's raw files.
func NightDir(root string, night int) string {
	year := night / 10000
	month := (night / 100) % 100
	day := night % 100
	return filepath.Join(root, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), fmt.Sprintf("%02d", day))
}

// RunPath returns the canonical path of a run file without its
// compression extension.
func RunPath(root string, key model.RunKey) string {
	return filepath.Join(NightDir(root, key.Night), key.String())
}

// PathFor returns the full path of a run file with a known extension.
func PathFor(root string, key model.RunKey, extension string) string {
	return RunPath(root, key) + ".fits." + extension
}

// Resolve probes for the run's file, trying the fixed extension
// candidates in priority order. It returns the full path and the
// extension found, or found=false if neither candidate exists.
func Resolve(root string, key model.RunKey) (path, extension string, found bool) {
	for _, ext := range Extensions {
		p := PathFor(root, key, ext)
		if _, err := os.Stat(p); err == nil {
			return p, ext, true
		}
	}
	return "", "", false
}

// ParseBasename extracts the run key from a raw-file basename of the
// form YYYYMMDD_RRR[.fits.<ext>][...].
func ParseBasename(path string) (model.RunKey, error) {
	base := filepath.Base(path)
	if len(base) < 12 || base[8] != '_' {
		return model.RunKey{}, fmt.Errorf("malformed run basename %q", base)
	}

	night, err := strconv.Atoi(base[:8])
	if err != nil {
		return model.RunKey{}, fmt.Errorf("malformed night in %q: %w", base, err)
	}
	runID, err := strconv.Atoi(base[9:12])
	if err != nil {
		return model.RunKey{}, fmt.Errorf("malformed run id in %q: %w", base, err)
	}
	return model.RunKey{Night: night, RunID: runID}, nil
}

// Extension returns the compression extension of a raw-file path
// ("fz" or "gz"), or empty for anything else.
func Extension(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	for _, known := range Extensions {
		if ext == known {
			return ext
		}
	}
	return ""
}

// IsDrsFile reports whether the path names a DRS calibration file.
func IsDrsFile(path string) bool {
	return strings.HasSuffix(path, ".drs.fits.gz")
}

// ListRunFiles globs every raw run file under the tree and returns the
// run keys found. Malformed names are skipped, not fatal: one odd file
// never blocks a reconciliation pass.
func ListRunFiles(root string) (map[model.RunKey]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", "*", "*", "*.fits.?z"))
	if err != nil {
		return nil, fmt.Errorf("glob raw tree %s: %w", root, err)
	}

	files := make(map[model.RunKey]string, len(matches))
	for _, m := range matches {
		if IsDrsFile(m) {
			continue
		}
		key, err := ParseBasename(m)
		if err != nil {
			continue
		}
		files[key] = m
	}
	return files, nil
}

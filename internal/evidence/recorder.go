// Package evidence writes, reads and indexes sweep artifacts.
package evidence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
)

// #region constants

const filePrefix = "aeterna_porta_sweep_"

// maxSuffix bounds the collision search for one timestamp.
const maxSuffix = 1000

// #endregion constants

// #region recorder

// Recorder writes artifacts into a directory. It never overwrites a file.
type Recorder struct {
	dir    string
	log    zerolog.Logger
	create func(path string) (io.WriteCloser, error)
}

// createExclusive fails with fs.ErrExist when path is taken.
func createExclusive(path string) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewRecorder returns a recorder for dir. The directory is created on the
// first write.
func NewRecorder(dir string, log zerolog.Logger) *Recorder {
	return &Recorder{
		dir:    dir,
		log:    log.With().Str("component", "evidence").Logger(),
		create: createExclusive,
	}
}

// Dir returns the output directory.
func (r *Recorder) Dir() string {
	return r.dir
}

// Write stores a as aeterna_porta_sweep_<unix>.json, or with a -N suffix when
// that name is taken, and returns the path written.
func (r *Recorder) Write(a Artifact) (string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return "", fmt.Errorf("create evidence dir: %w", err)
	}
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	base := filePrefix + strconv.FormatInt(int64(a.Timestamp), 10)
	for n := 0; n < maxSuffix; n++ {
		name := base + ".json"
		if n > 0 {
			name = base + "-" + strconv.Itoa(n) + ".json"
		}
		path := filepath.Join(r.dir, name)

		f, err := r.create(path)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create artifact: %w", err)
		}
		// a partial file must not be left for Load or the index to find
		if _, err := f.Write(append(data, '\n')); err != nil {
			_ = f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("write artifact %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("close artifact %s: %w", path, err)
		}
		r.log.Info().
			Str("path", path).
			Str("run_id", a.RunID).
			Int("results", len(a.Results)).
			Int("failed", len(a.FailedCells)).
			Msg("evidence written")
		return path, nil
	}
	return "", fmt.Errorf("create artifact: %d names taken for %s", maxSuffix, base)
}

// #endregion recorder

// #region load

// Load reads an artifact written by Write.
func Load(path string) (Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if a.ManifestVersion == "" {
		return Artifact{}, fmt.Errorf("decode artifact %s: missing manifest_version", path)
	}
	return a, nil
}

// #endregion load

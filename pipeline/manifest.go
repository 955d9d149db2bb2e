package pipeline

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasmnoise/args"
	"github.com/wippyai/wasmnoise/errors"
)

// ManifestFileName is written into every build directory.
const ManifestFileName = "build.yaml"

// Manifest records how a build directory was produced.
type Manifest struct {
	ID           string   `yaml:"id"`
	Version      string   `yaml:"version"`
	Level        string   `yaml:"level"`
	Optimisation string   `yaml:"optimisation"`
	AllowAbort   bool     `yaml:"allow_abort,omitempty"`
	Groups       []string `yaml:"groups"`
	Macros       []string `yaml:"macros,omitempty"`
	Sources      []string `yaml:"sources"`
	Artifacts    []string `yaml:"artifacts"`
	Loader       string   `yaml:"loader"`
	// RemovedExports lists the exports dropped by the filter.
	RemovedExports []string `yaml:"removed_exports,omitempty"`
	Verified       bool     `yaml:"verified"`
	Built          string   `yaml:"built"` // RFC 3339
}

// NewManifest describes res built with opts at the given time.
func NewManifest(res *Result, opts args.Options, built time.Time) *Manifest {
	m := &Manifest{
		ID:             res.ID,
		Version:        res.Version.String(),
		Level:          opts.Level.String(),
		Optimisation:   opts.Optimisation,
		AllowAbort:     opts.AllowAbort,
		Groups:         res.Groups.Names(),
		Macros:         res.Macros,
		Sources:        res.Sources,
		Artifacts:      res.Artifacts.List(),
		RemovedExports: res.Filter.Removed,
		Verified:       res.Report != nil && res.Report.Compiled,
		Built:          built.UTC().Format(time.RFC3339),
	}
	if res.Loader != "" {
		m.Loader = filepath.Base(res.Loader)
	}
	return m
}

// WriteManifest writes m to path as YAML.
func WriteManifest(path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(errors.PhaseToolchain, errors.KindParse, err, "marshal manifest")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.IO(errors.PhaseToolchain, path, err)
	}
	return nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseToolchain, "manifest", path)
		}
		return nil, errors.IO(errors.PhaseToolchain, path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.ParseFailed(errors.PhaseToolchain, path, err)
	}
	return &m, nil
}

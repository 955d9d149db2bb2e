package version

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/wippyai/wasmnoise/errors"
)

// Section is the INI section holding the counters.
const Section = "VERSION"

var counterKeys = [...]string{"major", "minor", "patch", "build"}

// Store reads and rewrites a version file of the form
//
//	[VERSION]
//	major = 1
//	minor = 2
//	patch = 3
//	build = 7
//
// Other sections and keys in the file are preserved on save.
type Store struct {
	path string
}

// NewStore returns a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the version file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current version.
func (s *Store) Load() (Version, error) {
	f, err := s.open()
	if err != nil {
		return Version{}, err
	}

	sec, err := f.GetSection(Section)
	if err != nil {
		return Version{}, errors.New(errors.PhaseVersion, errors.KindNotFound).
			Path(s.path).
			Detail("section [%s] missing", Section).
			Build()
	}

	var counters [4]int64
	for i, name := range counterKeys {
		key, err := sec.GetKey(name)
		if err != nil {
			return Version{}, errors.New(errors.PhaseVersion, errors.KindNotFound).
				Path(s.path).
				Detail("key %q missing from [%s]", name, Section).
				Build()
		}
		n, err := strconv.ParseInt(key.String(), 10, 64)
		if err != nil {
			return Version{}, errors.New(errors.PhaseVersion, errors.KindParse).
				Path(s.path).
				Detail("key %q is not an integer: %q", name, key.String()).
				Cause(err).
				Build()
		}
		counters[i] = n
	}

	v := Version{Major: counters[0], Minor: counters[1], Patch: counters[2], Build: counters[3]}
	if err := v.validate(); err != nil {
		err.Path = s.path
		return Version{}, err
	}
	return v, nil
}

// Save writes v back to the file, keeping unrelated content.
func (s *Store) Save(v Version) error {
	if err := v.validate(); err != nil {
		return err
	}

	f, err := s.open()
	if err != nil {
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseVersion, Kind: errors.KindNotFound}) {
			return err
		}
		f = ini.Empty()
	}

	sec := f.Section(Section)
	values := [4]int64{v.Major, v.Minor, v.Patch, v.Build}
	for i, name := range counterKeys {
		sec.Key(name).SetValue(strconv.FormatInt(values[i], 10))
	}

	return s.write(f)
}

// Increment loads the version, bumps it at level and saves the result.
func (s *Store) Increment(level Level) (old, updated Version, err error) {
	old, err = s.Load()
	if err != nil {
		return Version{}, Version{}, err
	}
	updated = old.Bump(level)
	if err := s.Save(updated); err != nil {
		return Version{}, Version{}, err
	}
	return old, updated, nil
}

// Init creates a 0.0.0.0 version file. It reports false when the file
// already exists and leaves it untouched.
func (s *Store) Init() (bool, error) {
	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !stderrors.Is(err, fs.ErrNotExist) {
		return false, errors.IO(errors.PhaseVersion, s.path, err)
	}
	if err := s.Save(Version{}); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) open() (*ini.File, error) {
	f, err := ini.LoadSources(ini.LoadOptions{InsensitiveKeys: true}, s.path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.New(errors.PhaseVersion, errors.KindNotFound).
				Path(s.path).
				Detail("version file does not exist").
				Cause(err).
				Build()
		}
		return nil, errors.ParseFailed(errors.PhaseVersion, s.path, err)
	}
	return f, nil
}

// write replaces the file through a temp file and rename.
func (s *Store) write(f *ini.File) error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.IO(errors.PhaseVersion, s.path, err)
	}
	defer os.Remove(tmp.Name())

	mode := fs.FileMode(0o644)
	if info, err := os.Stat(s.path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return errors.IO(errors.PhaseVersion, s.path, err)
	}

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		return errors.IO(errors.PhaseVersion, s.path, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.IO(errors.PhaseVersion, s.path, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.IO(errors.PhaseVersion, s.path, fmt.Errorf("replace: %w", err))
	}
	return nil
}

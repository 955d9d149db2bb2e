package exports

import (
	"bufio"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/errors"
)

// FilteredSuffix is inserted before the extension of filtered files.
const FilteredSuffix = "cleanexports"

const exportMarker = "export"

// FilterStats summarises one filter pass.
type FilterStats struct {
	Lines   int
	Exports int
	Removed []string
}

// Kept returns the number of export lines that survived.
func (s FilterStats) Kept() int {
	return s.Exports - len(s.Removed)
}

// FilteredName returns path with FilteredSuffix inserted before its final
// extension: "bin/a-1.2.3.wat" becomes "bin/a-1.2.3.cleanexports.wat".
func FilteredName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext == "" || ext == base {
		return path + "." + FilteredSuffix
	}
	return strings.TrimSuffix(path, ext) + "." + FilteredSuffix + ext
}

// ExportName extracts the quoted symbol from an export declaration such as
// `(export "GetPerlin2" (func $GetPerlin2))`. ok is false when line carries
// no export marker or no complete quoted name.
func ExportName(line string) (name string, ok bool) {
	if !strings.Contains(line, exportMarker) {
		return "", false
	}
	_, rest, found := strings.Cut(line, `"`)
	if !found {
		return "", false
	}
	name, _, found = strings.Cut(rest, `"`)
	if !found {
		return "", false
	}
	return name, true
}

// Filter copies r to w line by line, dropping export declarations whose
// symbol is not in allowed. Every other line, including export lines without
// a quoted name, is copied verbatim with its original line ending.
func Filter(r io.Reader, w io.Writer, allowed SymbolSet) (FilterStats, error) {
	var stats FilterStats
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			stats.Lines++
			keep := true
			if name, ok := ExportName(line); ok {
				stats.Exports++
				if !allowed.Contains(name) {
					keep = false
					stats.Removed = append(stats.Removed, name)
				}
			}
			if keep {
				if _, werr := bw.WriteString(line); werr != nil {
					return stats, werr
				}
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return stats, err
		}
	}
	return stats, bw.Flush()
}

// FilterFile filters the text module at path for the enabled groups and
// writes the result next to it under FilteredName(path).
func FilterFile(path string, table *Table, set GroupSet) (string, FilterStats, error) {
	out := FilteredName(path)
	log := Logger().With(zap.String("input", path), zap.String("output", out))

	in, err := os.Open(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return "", FilterStats{}, errors.NotFound(errors.PhaseFilter, "text module", path)
		}
		return "", FilterStats{}, errors.IO(errors.PhaseFilter, path, err)
	}
	defer in.Close()

	dst, err := os.Create(out)
	if err != nil {
		return "", FilterStats{}, errors.IO(errors.PhaseFilter, out, err)
	}

	stats, err := Filter(in, dst, table.Allowed(set))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out)
		return "", stats, errors.IO(errors.PhaseFilter, out, err)
	}

	log.Debug("filtered exports",
		zap.Int("lines", stats.Lines),
		zap.Int("exports", stats.Exports),
		zap.Int("removed", len(stats.Removed)))
	for _, name := range stats.Removed {
		log.Debug("removed export", zap.String("symbol", name))
	}
	return out, stats, nil
}

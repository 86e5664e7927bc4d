package dataset

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Pliploop/MuLOOC/pkg/errors"
	"github.com/tidwall/gjson"
)

// PathField is the manifest column holding the recording path.
const PathField = "file_path"

// LabelsField is the manifest field holding an optional label vector.
const LabelsField = "labels"

// Item is one manifest row.
type Item struct {
	Path   string
	Labels []float64
}

// Manifest lists the recordings of a dataset.
type Manifest []Item

// Paths returns the recording paths in order.
func (m Manifest) Paths() []string {
	out := make([]string, len(m))
	for i, it := range m {
		out[i] = it.Path
	}
	return out
}

// LoadManifest reads a manifest file. Files ending in .jsonl or .json are read
// as one JSON object per line, anything else as CSV with a header row.
// Relative recording paths are resolved against the manifest directory.
func LoadManifest(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %s", path)
	}
	defer f.Close()

	var m Manifest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json":
		m, err = ReadJSONL(f)
	default:
		m, err = ReadCSV(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read manifest %s", path)
	}
	dir := filepath.Dir(path)
	for i := range m {
		if !filepath.IsAbs(m[i].Path) {
			m[i].Path = filepath.Join(dir, m[i].Path)
		}
	}
	return m, nil
}

// ReadJSONL parses lines such as {"file_path": "a.wav", "labels": [0, 1]}.
// Blank lines are skipped.
func ReadJSONL(r io.Reader) (Manifest, error) {
	var m Manifest
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		if !gjson.Valid(text) {
			return nil, errors.Newf("line %d: invalid json", line)
		}
		rec := gjson.Parse(text)
		p := rec.Get(PathField)
		if !p.Exists() || p.String() == "" {
			return nil, errors.Newf("line %d: missing %s", line, PathField)
		}
		it := Item{Path: p.String()}
		if labels := rec.Get(LabelsField); labels.Exists() {
			if !labels.IsArray() {
				return nil, errors.Newf("line %d: %s must be an array", line, LabelsField)
			}
			for _, v := range labels.Array() {
				it.Labels = append(it.Labels, v.Float())
			}
		}
		m = append(m, it)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.WithStack(err)
	}
	return m, nil
}

// ReadCSV parses a header row naming file_path. Every other column is read
// as one label value.
func ReadCSV(r io.Reader) (Manifest, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if len(records) == 0 {
		return nil, errors.ErrEmptyData
	}
	pathCol := -1
	for i, h := range records[0] {
		if strings.TrimSpace(h) == PathField {
			pathCol = i
		}
	}
	if pathCol < 0 {
		return nil, errors.Newf("header has no %s column", PathField)
	}

	m := make(Manifest, 0, len(records)-1)
	for row, rec := range records[1:] {
		it := Item{Path: strings.TrimSpace(rec[pathCol])}
		if it.Path == "" {
			return nil, errors.Newf("row %d: empty %s", row+2, PathField)
		}
		for i, v := range rec {
			if i == pathCol {
				continue
			}
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d column %d", row+2, i+1)
			}
			it.Labels = append(it.Labels, f)
		}
		m = append(m, it)
	}
	return m, nil
}

package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hupe1980/dgcnn/tensor"
)

// ReadText parses a cloud with one point per line: the coordinates followed
// by the integer part label ("x y z part"). Blank lines and lines starting
// with '#' are skipped. All points must have the same number of fields.
func ReadText(r io.Reader, category int) (Sample, error) {
	var (
		coords []float32
		labels []int32
		dim    = -1
	)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return Sample{}, fmt.Errorf("dataset: line %d: want coordinates and a label, got %d fields", line, len(fields))
		}
		if dim < 0 {
			dim = len(fields) - 1
		} else if len(fields)-1 != dim {
			return Sample{}, fmt.Errorf("dataset: line %d: want %d coordinates, got %d", line, dim, len(fields)-1)
		}
		for _, f := range fields[:dim] {
			v, err := strconv.ParseFloat(f, 32)
			if err != nil {
				return Sample{}, fmt.Errorf("dataset: line %d: %w", line, err)
			}
			coords = append(coords, float32(v))
		}
		label, err := strconv.ParseInt(fields[dim], 10, 32)
		if err != nil {
			return Sample{}, fmt.Errorf("dataset: line %d: label: %w", line, err)
		}
		labels = append(labels, int32(label))
	}
	if err := sc.Err(); err != nil {
		return Sample{}, err
	}
	if dim < 0 {
		return Sample{}, fmt.Errorf("dataset: no points")
	}

	m := tensor.NewMatrix(len(labels), dim)
	copy(m.Data, coords)
	return Sample{Points: m, Labels: labels, Category: category}, nil
}

// ReadTextFile reads a cloud from path.
func ReadTextFile(path string, category int) (Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sample{}, err
	}
	defer f.Close()

	s, err := ReadText(f, category)
	if err != nil {
		return Sample{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// WriteText writes s in the format ReadText parses.
func WriteText(w io.Writer, s Sample) error {
	if err := s.Validate(); err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	for i := range s.Points.Rows {
		for _, v := range s.Points.Row(i) {
			bw.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
			bw.WriteByte(' ')
		}
		bw.WriteString(strconv.FormatInt(int64(s.Labels[i]), 10))
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// Files is a Dataset of text files read on demand.
type Files struct {
	Paths      []string
	Categories []int
}

// Len returns the number of files.
func (f *Files) Len() int { return len(f.Paths) }

// Sample reads file i.
func (f *Files) Sample(i int) (Sample, error) {
	if i < 0 || i >= len(f.Paths) {
		return Sample{}, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	category := 0
	if i < len(f.Categories) {
		category = f.Categories[i]
	}
	return ReadTextFile(f.Paths[i], category)
}

// ScanDir builds a Files dataset from root/<category>/*.txt. Category
// directories are ordered by name; the i-th directory is category i.
// It returns the category names alongside the dataset.
func ScanDir(root string) (*Files, []string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	f := &Files{}
	for c, name := range names {
		paths, err := filepath.Glob(filepath.Join(root, name, "*.txt"))
		if err != nil {
			return nil, nil, err
		}
		sort.Strings(paths)
		for _, p := range paths {
			f.Paths = append(f.Paths, p)
			f.Categories = append(f.Categories, c)
		}
	}
	if f.Len() == 0 {
		return nil, nil, fmt.Errorf("dataset: no clouds under %s", root)
	}
	return f, names, nil
}

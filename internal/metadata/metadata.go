// Package metadata reads the per-sample metadata table.
package metadata

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	ColumnCleanName  = "Clean Name"
	ColumnLeaning    = "Egocentric Leaning"
	ColumnSkipAffine = "Skip Affine"
	ColumnInclusion  = "Refinement Inclusion"
)

var (
	ErrMissingColumn     = errors.New("metadata column is missing")
	ErrDuplicateName     = errors.New("clean name appears more than once")
	ErrInvalidSkipAffine = errors.New("skip affine must be 0 or 1")
	ErrInvalidLeaning    = errors.New("egocentric leaning must be left, right, or sym")
	ErrNotFound          = errors.New("clean name not found in metadata")
)

// Leaning is the side a brain leans toward.
type Leaning string

const (
	Left  Leaning = "left"
	Right Leaning = "right"
	Sym   Leaning = "sym"
)

// ParseLeaning accepts left, right, or sym.
func ParseLeaning(s string) (Leaning, error) {
	switch l := Leaning(strings.ToLower(strings.TrimSpace(s))); l {
	case Left, Right, Sym:
		return l, nil
	default:
		return "", errors.Wrapf(ErrInvalidLeaning, "got %q", s)
	}
}

// Record is one row of the table.
type Record struct {
	CleanName  string
	SkipAffine bool
	leaning    string
	inclusion  string
}

// Leaning returns the egocentric leaning of the sample.
func (r Record) Leaning() (Leaning, error) {
	l, err := ParseLeaning(r.leaning)
	if err != nil {
		return "", errors.Wrap(err, r.CleanName)
	}

	return l, nil
}

// Included reports whether the sample takes part in the refined template.
func (r Record) Included() bool {
	switch strings.ToLower(strings.TrimSpace(r.inclusion)) {
	case "", "0", "0.0", "false", "no":
		return false
	default:
		return true
	}
}

// Metadata indexes records by clean name.
type Metadata struct {
	records map[string]Record
	names   []string
}

// Load reads the CSV file at path.
func Load(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open metadata %s", path)
	}
	defer f.Close()

	md, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid metadata %s", path)
	}

	return md, nil
}

func parseSkipAffine(s string) (bool, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || (v != 0 && v != 1) {
		return false, errors.Wrapf(ErrInvalidSkipAffine, "got %q", s)
	}

	return v == 1, nil
}

// Parse reads a CSV table with a header row.
func Parse(r io.Reader) (*Metadata, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read header")
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		columns[name] = i
	}
	nameIdx, ok := columns[ColumnCleanName]
	if !ok {
		return nil, errors.Wrap(ErrMissingColumn, ColumnCleanName)
	}
	cell := func(row []string, column string) (string, bool) {
		idx, ok := columns[column]
		if !ok || idx >= len(row) {
			return "", ok
		}

		return strings.TrimSpace(row[idx]), true
	}

	md := &Metadata{records: make(map[string]Record)}
	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if nameIdx >= len(row) || strings.TrimSpace(row[nameIdx]) == "" {
			continue
		}

		rec := Record{CleanName: strings.TrimSpace(row[nameIdx])}
		if _, dup := md.records[rec.CleanName]; dup {
			return nil, errors.Wrapf(ErrDuplicateName, "line %d: %s", line, rec.CleanName)
		}
		rec.leaning, _ = cell(row, ColumnLeaning)
		rec.inclusion, _ = cell(row, ColumnInclusion)
		if skip, present := cell(row, ColumnSkipAffine); present {
			rec.SkipAffine, err = parseSkipAffine(skip)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d: %s", line, rec.CleanName)
			}
		}

		md.records[rec.CleanName] = rec
		md.names = append(md.names, rec.CleanName)
	}

	return md, nil
}

// Lookup returns the record of a clean name.
func (m *Metadata) Lookup(cleanName string) (Record, error) {
	rec, ok := m.records[cleanName]
	if !ok {
		return Record{}, errors.Wrap(ErrNotFound, cleanName)
	}

	return rec, nil
}

// Names returns the clean names in file order.
func (m *Metadata) Names() []string {
	return append([]string(nil), m.names...)
}

// Package nrrd reads and writes NRRD volumes with attached data.
package nrrd

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const magicPrefix = "NRRD000"

var (
	ErrInvalidHeader = errors.New("invalid NRRD header")
	ErrUnsupported   = errors.New("unsupported NRRD feature")
)

// Field is one "key: value" line of a header.
type Field struct {
	Key   string
	Value string
}

// Header holds the fields of a NRRD header in file order.
type Header struct {
	Magic  string
	Fields []Field
	// KeyValues are the "key:=value" pairs.
	KeyValues []Field
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	switch key {
	case "datafile":
		return "data file"
	case "lineskip":
		return "line skip"
	case "byteskip":
		return "byte skip"
	case "centerings":
		return "centers"
	}

	return key
}

// Get returns the value of key, matched case-insensitively.
func (h Header) Get(key string) (string, bool) {
	key = normalizeKey(key)
	for _, f := range h.Fields {
		if normalizeKey(f.Key) == key {
			return f.Value, true
		}
	}

	return "", false
}

// Set replaces the value of key or appends the field.
func (h *Header) Set(key, value string) {
	norm := normalizeKey(key)
	for i, f := range h.Fields {
		if normalizeKey(f.Key) == norm {
			h.Fields[i].Value = value

			return
		}
	}
	h.Fields = append(h.Fields, Field{Key: key, Value: value})
}

// Sizes returns the length of every axis.
func (h Header) Sizes() ([]int, error) {
	value, ok := h.Get("sizes")
	if !ok {
		return nil, errors.Wrap(ErrInvalidHeader, "missing sizes")
	}

	parts := strings.Fields(value)
	sizes := make([]int, len(parts))
	for i, part := range parts {
		size, err := strconv.Atoi(part)
		if err != nil || size <= 0 {
			return nil, errors.Wrapf(ErrInvalidHeader, "invalid sizes %q", value)
		}
		sizes[i] = size
	}
	if dim, ok := h.Get("dimension"); ok && dim != strconv.Itoa(len(sizes)) {
		return nil, errors.Wrapf(ErrInvalidHeader, "dimension %s does not match sizes %q", dim, value)
	}

	return sizes, nil
}

// Len returns the number of samples.
func (h Header) Len() (int, error) {
	sizes, err := h.Sizes()
	if err != nil {
		return 0, err
	}
	n := 1
	for _, size := range sizes {
		n *= size
	}

	return n, nil
}

// SameField reports whether both headers hold key with the same value, ignoring spacing.
func SameField(a, b Header, key string) bool {
	va, oka := a.Get(key)
	vb, okb := b.Get(key)

	return oka == okb && strings.Join(strings.Fields(va), " ") == strings.Join(strings.Fields(vb), " ")
}

package ants

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidVoxelSize is returned when a voxel size is not three positive numbers.
var ErrInvalidVoxelSize = errors.New("voxel size must be three positive numbers separated by x")

// VoxelSize is a target resolution in the AxBxC notation.
type VoxelSize struct {
	X, Y, Z float64
	text    string
}

// ParseVoxelSize parses "AxBxC".
func ParseVoxelSize(s string) (VoxelSize, error) {
	parts := strings.Split(strings.TrimSpace(s), "x")
	if len(parts) != 3 {
		return VoxelSize{}, errors.Wrapf(ErrInvalidVoxelSize, "got %q", s)
	}

	values := make([]float64, 3)
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v <= 0 {
			return VoxelSize{}, errors.Wrapf(ErrInvalidVoxelSize, "got %q", s)
		}
		values[i] = v
	}

	return VoxelSize{X: values[0], Y: values[1], Z: values[2], text: strings.TrimSpace(s)}, nil
}

// String returns the voxel size as typed.
func (v VoxelSize) String() string {
	if v.text == "" {
		return strings.Join(v.Components(), "x")
	}

	return v.text
}

// Components returns the three spacings in their shortest decimal form.
func (v VoxelSize) Components() []string {
	res := make([]string, 0, 3)
	for _, f := range []float64{v.X, v.Y, v.Z} {
		res = append(res, strconv.FormatFloat(f, 'f', -1, 64))
	}

	return res
}

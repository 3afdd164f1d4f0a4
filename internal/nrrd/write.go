package nrrd

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrSizeMismatch is returned when the samples do not fill the template geometry.
var ErrSizeMismatch = errors.New("number of samples does not match sizes")

// geometry lists the fields copied from the template header.
var geometry = []string{"space", "space dimension", "space directions", "kinds", "space units", "space origin"}

// Write encodes data as a gzip float volume with the geometry of template.
func Write(w io.Writer, template Header, data []float64) error {
	sizes, err := template.Sizes()
	if err != nil {
		return err
	}
	n := 1
	for _, size := range sizes {
		n *= size
	}
	if n != len(data) {
		return errors.Wrapf(ErrSizeMismatch, "got %d samples for %d", len(data), n)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "NRRD0004")
	fmt.Fprintln(bw, "# Complete NRRD file format specification at:")
	fmt.Fprintln(bw, "# http://teem.sourceforge.net/nrrd/format.html")
	fmt.Fprintln(bw, "type: float")
	fmt.Fprintf(bw, "dimension: %d\n", len(sizes))
	strs := make([]string, len(sizes))
	for i, size := range sizes {
		strs[i] = strconv.Itoa(size)
	}
	fmt.Fprintf(bw, "sizes: %s\n", strings.Join(strs, " "))
	for _, key := range geometry {
		if value, ok := template.Get(key); ok {
			fmt.Fprintf(bw, "%s: %s\n", key, value)
		}
	}
	fmt.Fprintln(bw, "endian: little")
	fmt.Fprintln(bw, "encoding: gzip")
	fmt.Fprintln(bw)

	zw := gzip.NewWriter(bw)
	buf := make([]byte, 4)
	for _, v := range data {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
		if _, err := zw.Write(buf); err != nil {
			return errors.Wrap(err, "unable to write samples")
		}
	}
	if err := zw.Close(); err != nil {
		return errors.Wrap(err, "unable to close gzip data")
	}

	return errors.Wrap(bw.Flush(), "unable to flush volume")
}

// WriteFile writes the volume to path.
func WriteFile(path string, template Header, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	if err := Write(f, template, data); err != nil {
		f.Close()

		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(f.Close(), "unable to close %s", path)
}

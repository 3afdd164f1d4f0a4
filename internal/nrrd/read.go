package nrrd

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Volume is a NRRD header and its samples in file order.
type Volume struct {
	Header Header
	Sizes  []int
	Data   []float64
}

// ReadFile reads the volume stored at path.
func ReadFile(path string) (*Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	vol, err := Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read %s", path)
	}

	return vol, nil
}

// ReadHeaderFile reads only the header of the volume stored at path.
func ReadHeaderFile(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	h, err := readHeader(bufio.NewReader(f))
	if err != nil {
		return Header{}, errors.Wrapf(err, "unable to read %s", path)
	}

	return h, nil
}

// Read parses a volume with attached data.
func Read(r io.Reader) (*Volume, error) {
	br := bufio.NewReader(r)
	h, err := readHeader(br)
	if err != nil {
		return nil, err
	}
	if _, ok := h.Get("data file"); ok {
		return nil, errors.Wrap(ErrUnsupported, "detached data")
	}

	sizes, err := h.Sizes()
	if err != nil {
		return nil, err
	}
	n, err := h.Len()
	if err != nil {
		return nil, err
	}
	typ, _ := h.Get("type")
	s, err := lookupScalar(typ)
	if err != nil {
		return nil, err
	}
	order, err := byteOrder(h, s)
	if err != nil {
		return nil, err
	}

	var data io.Reader = br
	encoding, _ := h.Get("encoding")
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "raw":
	case "gzip", "gz":
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.Wrap(err, "unable to open gzip data")
		}
		defer zr.Close()
		data = zr
	default:
		return nil, errors.Wrapf(ErrUnsupported, "encoding %q", encoding)
	}

	values, err := decode(data, s, order, n)
	if err != nil {
		return nil, err
	}

	return &Volume{Header: h, Sizes: sizes, Data: values}, nil
}

func readHeader(br *bufio.Reader) (Header, error) {
	magic, err := br.ReadString('\n')
	if err != nil {
		return Header{}, errors.Wrap(ErrInvalidHeader, "missing magic line")
	}
	magic = strings.TrimRight(magic, "\r\n")
	if !strings.HasPrefix(magic, magicPrefix) {
		return Header{}, errors.Wrapf(ErrInvalidHeader, "bad magic %q", magic)
	}

	h := Header{Magic: magic}
	for {
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return Header{}, errors.Wrap(ErrInvalidHeader, "header is not terminated by an empty line")
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if key, value, ok := strings.Cut(line, ":="); ok {
			h.KeyValues = append(h.KeyValues, Field{Key: key, Value: value})

			continue
		}
		key, value, ok := strings.Cut(line, ": ")
		if !ok {
			return Header{}, errors.Wrapf(ErrInvalidHeader, "malformed line %q", line)
		}
		h.Fields = append(h.Fields, Field{Key: key, Value: strings.TrimSpace(value)})
	}

	return h, nil
}

func byteOrder(h Header, s scalar) (binary.ByteOrder, error) {
	endian, ok := h.Get("endian")
	if !ok {
		if s.size > 1 {
			return nil, errors.Wrap(ErrInvalidHeader, "missing endian")
		}

		return binary.LittleEndian, nil
	}
	switch strings.ToLower(strings.TrimSpace(endian)) {
	case "little":
		return binary.LittleEndian, nil
	case "big":
		return binary.BigEndian, nil
	default:
		return nil, errors.Wrapf(ErrInvalidHeader, "endian %q", endian)
	}
}

func decode(r io.Reader, s scalar, order binary.ByteOrder, n int) ([]float64, error) {
	raw := make([]byte, n*s.size)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrapf(err, "unable to read %d samples", n)
	}

	values := make([]float64, n)
	for i := range values {
		values[i] = s.decode(raw[i*s.size:(i+1)*s.size], order)
	}

	return values, nil
}

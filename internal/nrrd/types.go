package nrrd

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/pkg/errors"
)

type scalar struct {
	name   string
	size   int
	decode func(b []byte, order binary.ByteOrder) float64
}

var scalars = []scalar{
	{name: "int8", size: 1, decode: func(b []byte, _ binary.ByteOrder) float64 { return float64(int8(b[0])) }},
	{name: "uint8", size: 1, decode: func(b []byte, _ binary.ByteOrder) float64 { return float64(b[0]) }},
	{name: "int16", size: 2, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int16(o.Uint16(b))) }},
	{name: "uint16", size: 2, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint16(b)) }},
	{name: "int32", size: 4, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int32(o.Uint32(b))) }},
	{name: "uint32", size: 4, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint32(b)) }},
	{name: "int64", size: 8, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(int64(o.Uint64(b))) }},
	{name: "uint64", size: 8, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(o.Uint64(b)) }},
	{name: "float", size: 4, decode: func(b []byte, o binary.ByteOrder) float64 { return float64(math.Float32frombits(o.Uint32(b))) }},
	{name: "double", size: 8, decode: func(b []byte, o binary.ByteOrder) float64 { return math.Float64frombits(o.Uint64(b)) }},
}

var typeAliases = map[string]string{
	"signed char": "int8", "int8_t": "int8",
	"uchar": "uint8", "unsigned char": "uint8", "uint8_t": "uint8",
	"short": "int16", "short int": "int16", "signed short": "int16", "signed short int": "int16", "int16_t": "int16",
	"ushort": "uint16", "unsigned short": "uint16", "unsigned short int": "uint16", "uint16_t": "uint16",
	"int": "int32", "signed int": "int32", "int32_t": "int32",
	"uint": "uint32", "unsigned int": "uint32", "uint32_t": "uint32",
	"longlong": "int64", "long long": "int64", "long long int": "int64", "signed long long": "int64",
	"signed long long int": "int64", "int64_t": "int64",
	"ulonglong": "uint64", "unsigned long long": "uint64", "unsigned long long int": "uint64", "uint64_t": "uint64",
}

func lookupScalar(name string) (scalar, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := typeAliases[name]; ok {
		name = alias
	}
	for _, s := range scalars {
		if s.name == name {
			return s, nil
		}
	}

	return scalar{}, errors.Wrapf(ErrUnsupported, "type %q", name)
}

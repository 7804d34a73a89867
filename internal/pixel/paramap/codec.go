package paramap

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// Blob layout: little-endian values, zstd compressed.
const (
	dtypeFloat64 = "float64"
	dtypeUint32  = "uint32"
	codecZstd    = "zstd"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	decoder, _ = zstd.NewReader(nil)
)

func encodeFloats(v []float64) []byte {
	raw := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(x))
	}
	return encoder.EncodeAll(raw, nil)
}

func encodeCounts(v []uint32) []byte {
	raw := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(raw[4*i:], x)
	}
	return encoder.EncodeAll(raw, nil)
}

func decompress(blob []byte, width, n int) ([]byte, error) {
	raw, err := decoder.DecodeAll(blob, make([]byte, 0, width*n))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress array: %w", err)
	}
	if len(raw) != width*n {
		return nil, fmt.Errorf("%w: %d bytes for %d values of %d bytes", ErrShape, len(raw), n, width)
	}
	return raw, nil
}

func decodeFloats(blob []byte, n int) ([]float64, error) {
	raw, err := decompress(blob, 8, n)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
	}
	return out, nil
}

func decodeCounts(blob []byte, n int) ([]uint32, error) {
	raw, err := decompress(blob, 4, n)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return out, nil
}

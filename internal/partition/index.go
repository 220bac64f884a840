package partition

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// lengthSize is the width of every integer in an index file.
const lengthSize = 4

var ErrIndexCorrupt = errors.New("partition index corrupt")

// encodeIndex lays out an index as a native endian uint32 count followed
// by one native endian uint32 length per chunk.
func encodeIndex(lengths []uint32) []byte {
	b := make([]byte, lengthSize*(len(lengths)+1))
	binary.NativeEndian.PutUint32(b, uint32(len(lengths)))
	for i, l := range lengths {
		binary.NativeEndian.PutUint32(b[lengthSize*(i+1):], l)
	}
	return b
}

func decodeIndex(b []byte) ([]uint32, error) {
	if len(b) < lengthSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrIndexCorrupt, len(b))
	}
	n := binary.NativeEndian.Uint32(b)
	if want := lengthSize * (uint64(n) + 1); uint64(len(b)) != want {
		return nil, fmt.Errorf("%w: %d chunks need %d bytes, got %d", ErrIndexCorrupt, n, want, len(b))
	}
	lengths := make([]uint32, n)
	for i := range lengths {
		lengths[i] = binary.NativeEndian.Uint32(b[lengthSize*(i+1):])
	}
	return lengths, nil
}

func checkLength(l int64) (uint32, error) {
	if l >= math.MaxUint32 {
		return 0, fmt.Errorf("chunk of %d bytes does not fit the index", l)
	}
	return uint32(l), nil
}

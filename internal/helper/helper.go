package helper

import (
	"bytes"
)

// MagicLength is the number of leading bytes IsCompressed looks at.
const MagicLength = 10

// https://en.wikipedia.org/wiki/List_of_file_signatures
var magicTable = [][]byte{
	{31, 139},                      // .gz "\x1f\x8b"
	{66, 90, 104},                  // .bz2 "BZh"
	{253, 55, 122, 88, 90, 0},      // .xz "\xfd7zXZ\x00"
	{40, 181, 47, 253},             // .zst "\x28\xb5\x2f\xfd"
	{80, 75, 3, 4},                 // .zip "\x50\x4B\x03\x04"
	{80, 75, 5, 6},                 // .zip "\x50\x4B\x05\x06"
	{80, 75, 7, 8},                 // .zip "\x50\x4B\x07\x08"
	{55, 122, 188, 175, 39, 28, 0}, // .7z
}

// IsCompressed reports whether content starts with the signature of a
// compressed or archive format. Such files cannot be split at byte
// offsets.
func IsCompressed(content []byte) bool {
	sliceEnd := MagicLength
	if len(content) < sliceEnd {
		sliceEnd = len(content)
	}
	contentStr := content[0:sliceEnd]

	for _, magic := range magicTable {
		if bytes.HasPrefix(contentStr, magic) {
			return true
		}
	}

	return false
}

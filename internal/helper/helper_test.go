package helper

import "testing"

func TestIsCompressed(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
		want    bool
	}{
		{"gzip", []byte("\x1f\x8b\x08\x00\x00\x00"), true},
		{"bzip2", []byte("BZh91AY&SY"), true},
		{"xz", []byte("\xfd7zXZ\x00\x00"), true},
		{"zstd", []byte("\x28\xb5\x2f\xfd\x00"), true},
		{"zip", []byte("PK\x03\x04\x14\x00"), true},
		{"ndjson", []byte(`{"name":"example.de."}`), false},
		{"short", []byte{31}, false},
		{"empty", nil, false},
	}
	for _, tc := range tests {
		if got := IsCompressed(tc.content); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

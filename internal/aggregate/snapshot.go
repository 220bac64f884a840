package aggregate

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"
	"github.com/tinylib/msgp/msgp"
)

// Snapshot is a persisted tally of one report run. Snapshots of the same
// kind produced on different machines can be merged later.
type Snapshot struct {
	ID      ulid.ULID
	Source  string
	Kind    string
	Created time.Time
	Tally   Tally
}

func NewSnapshot(id ulid.ULID, source, kind string, t Tally) *Snapshot {
	return &Snapshot{
		ID:      id,
		Source:  source,
		Kind:    kind,
		Created: time.Now().UTC(),
		Tally:   t,
	}
}

// MarshalMsg appends the msgpack encoding of s to b.
func (s *Snapshot) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "id")
	b = msgp.AppendBytes(b, s.ID[:])
	b = msgp.AppendString(b, "source")
	b = msgp.AppendString(b, s.Source)
	b = msgp.AppendString(b, "kind")
	b = msgp.AppendString(b, s.Kind)
	b = msgp.AppendString(b, "created")
	b = msgp.AppendTime(b, s.Created)
	b = msgp.AppendString(b, "tally")
	b = msgp.AppendMapHeader(b, uint32(len(s.Tally)))
	for category, counters := range s.Tally {
		b = msgp.AppendString(b, category)
		b = msgp.AppendMapHeader(b, uint32(len(counters)))
		for key, n := range counters {
			b = msgp.AppendString(b, key)
			b = msgp.AppendInt64(b, n)
		}
	}
	return b, nil
}

// UnmarshalMsg decodes a snapshot from b and returns the remaining bytes.
// Unknown fields are skipped. A tally that is not a map of maps of
// integers yields ErrMalformedTally.
func (s *Snapshot) UnmarshalMsg(b []byte) ([]byte, error) {
	fields, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, fmt.Errorf("could not read snapshot header: %w", err)
	}
	for range fields {
		var field string
		field, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return b, fmt.Errorf("could not read snapshot field: %w", err)
		}
		switch field {
		case "id":
			var raw []byte
			raw, b, err = msgp.ReadBytesBytes(b, nil)
			if err != nil {
				return b, fmt.Errorf("could not read snapshot id: %w", err)
			}
			if len(raw) != len(s.ID) {
				return b, fmt.Errorf("invalid snapshot id length %d", len(raw))
			}
			copy(s.ID[:], raw)
		case "source":
			s.Source, b, err = msgp.ReadStringBytes(b)
		case "kind":
			s.Kind, b, err = msgp.ReadStringBytes(b)
		case "created":
			s.Created, b, err = msgp.ReadTimeBytes(b)
		case "tally":
			s.Tally, b, err = unmarshalTally(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, fmt.Errorf("could not read snapshot field %q: %w", field, err)
		}
	}
	return b, nil
}

func unmarshalTally(b []byte) (Tally, []byte, error) {
	categories, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, b, fmt.Errorf("%w: %w", ErrMalformedTally, err)
	}
	t := make(Tally, categories)
	for range categories {
		var category string
		category, b, err = msgp.ReadStringBytes(b)
		if err != nil {
			return nil, b, fmt.Errorf("%w: %w", ErrMalformedTally, err)
		}
		var keys uint32
		keys, b, err = msgp.ReadMapHeaderBytes(b)
		if err != nil {
			return nil, b, fmt.Errorf("%w: category %q: %w", ErrMalformedTally, category, err)
		}
		t.Touch(category)
		for range keys {
			var key string
			key, b, err = msgp.ReadStringBytes(b)
			if err != nil {
				return nil, b, fmt.Errorf("%w: category %q: %w", ErrMalformedTally, category, err)
			}
			var n int64
			n, b, err = msgp.ReadInt64Bytes(b)
			if err != nil {
				return nil, b, fmt.Errorf("%w: %s/%s: %w", ErrMalformedTally, category, key, err)
			}
			t[category][key] += n
		}
	}
	return t, b, nil
}

// WriteSnapshot stores s at path.
func WriteSnapshot(fs afero.Fs, path string, s *Snapshot) error {
	b, err := s.MarshalMsg(nil)
	if err != nil {
		return fmt.Errorf("could not encode snapshot: %w", err)
	}
	if err := afero.WriteFile(fs, path, b, 0o644); err != nil {
		return fmt.Errorf("could not write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(fs afero.Fs, path string) (*Snapshot, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("could not read snapshot: %w", err)
	}
	s := &Snapshot{}
	rest, err := s.UnmarshalMsg(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%s: %d trailing bytes after snapshot", path, len(rest))
	}
	return s, nil
}

// MergeSnapshots merges the tallies of snapshots of the same kind.
func MergeSnapshots(snapshots ...*Snapshot) (Tally, error) {
	out := NewTally()
	for i, s := range snapshots {
		if s.Kind != snapshots[0].Kind {
			return nil, fmt.Errorf("snapshot %s has kind %q, expected %q", s.ID, s.Kind, snapshots[0].Kind)
		}
		if s.Tally == nil {
			return nil, fmt.Errorf("%w: snapshot %d has no tally", ErrMalformedTally, i)
		}
		out.Merge(s.Tally)
	}
	return out, nil
}

package partition

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// maxLineLength bounds a single line handed to EachLine.
const maxLineLength = 16 << 20

// ErrShortPartition is returned when the file ends before the partition
// does, i.e. it was truncated or rewritten after partitioning.
var ErrShortPartition = errors.New("partition extends past end of file")

// Partition is a line aligned byte range of a file. Workers open their own
// handle, so partitions of one file can be read concurrently.
type Partition struct {
	fs     afero.Fs
	Path   string
	Offset int64
	Length int64
}

func (p Partition) String() string {
	return fmt.Sprintf("%s[%d:%d]", p.Path, p.Offset, p.Offset+p.Length)
}

type partitionReader struct {
	io.Reader
	f afero.File
}

func (r partitionReader) Close() error {
	return r.f.Close()
}

// exactReader fails with ErrShortPartition when r hits EOF before
// remaining bytes were read.
type exactReader struct {
	r         io.Reader
	remaining int64
	p         Partition
}

func (e *exactReader) Read(b []byte) (int, error) {
	n, err := e.r.Read(b)
	e.remaining -= int64(n)
	if errors.Is(err, io.EOF) && e.remaining > 0 {
		return n, fmt.Errorf("%w: %s is missing %d bytes", ErrShortPartition, e.p, e.remaining)
	}
	return n, err
}

// checkSize opens the partition file and makes sure it still covers the
// whole partition.
func (p Partition) checkSize() (afero.File, error) {
	f, err := p.fs.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("could not open partition %s: %w", p, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("could not stat partition %s: %w", p, err)
	}
	if size := info.Size(); size < p.Offset+p.Length {
		f.Close()
		return nil, fmt.Errorf("%w: %s but file has %d bytes", ErrShortPartition, p, size)
	}
	return f, nil
}

// Open returns a reader over exactly the bytes of the partition decoded
// as UTF-8. Invalid sequences are replaced with U+FFFD. Reading fails
// with ErrShortPartition if the file no longer holds the whole range.
func (p Partition) Open() (io.ReadCloser, error) {
	f, err := p.checkSize()
	if err != nil {
		return nil, err
	}
	section := &exactReader{r: io.NewSectionReader(f, p.Offset, p.Length), remaining: p.Length, p: p}
	return partitionReader{
		Reader: transform.NewReader(section, unicode.UTF8.NewDecoder()),
		f:      f,
	}, nil
}

// Bytes returns the raw bytes of the partition.
func (p Partition) Bytes() (b []byte, err error) {
	f, err := p.checkSize()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	b = make([]byte, p.Length)
	n, err := f.ReadAt(b, p.Offset)
	if int64(n) != p.Length {
		if err == nil || errors.Is(err, io.EOF) {
			err = ErrShortPartition
		}
		return nil, fmt.Errorf("could not read partition %s: read %d bytes: %w", p, n, err)
	}
	return b, nil
}

// EachLine calls fn for every line of the partition without its line
// terminator. A final line without a newline is included. Iteration stops
// at the first error returned by fn.
func (p Partition) EachLine(fn func(line string) error) (err error) {
	r, err := p.Open()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("could not read partition %s: %w", p, err)
	}
	return nil
}

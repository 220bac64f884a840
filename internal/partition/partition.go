// Package partition splits large line oriented files into line aligned
// byte ranges that workers can read independently.
//
// The chunk layout of a file is computed once and cached in a sidecar
// index next to it. The index is rebuilt when it is missing or older than
// the file. An index that exists and is fresh but does not describe the
// file is reported as ErrIndexCorrupt and never silently replaced.
package partition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/firefart/dmarcsurvey/internal/helper"
	"github.com/spf13/afero"
)

const (
	DefaultBatchLines = 500
	DefaultExtension  = ".partition"

	scanBufferSize = 1 << 20
)

var ErrCompressedInput = errors.New("compressed input cannot be partitioned")

// Partitioner computes and caches the partitions of files.
type Partitioner struct {
	fs         afero.Fs
	batchLines int
	extension  string
	logger     *log.Logger
}

// New returns a Partitioner that groups batchLines lines per partition
// and stores indexes with the given extension.
func New(fs afero.Fs, batchLines int, extension string, logger *log.Logger) *Partitioner {
	if batchLines <= 0 {
		batchLines = DefaultBatchLines
	}
	if extension == "" {
		extension = DefaultExtension
	}
	return &Partitioner{
		fs:         fs,
		batchLines: batchLines,
		extension:  extension,
		logger:     logger,
	}
}

// IndexPath returns the sidecar index location for path: the full file
// name plus the index extension, so files that only differ in their
// extension never share an index.
func (p *Partitioner) IndexPath(path string) string {
	return path + p.extension
}

// Partitions returns the partitions of the file at path in file order,
// regenerating the index first if needed.
func (p *Partitioner) Partitions(path string) ([]Partition, error) {
	source, err := p.fs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("could not stat input file: %w", err)
	}

	indexPath := p.IndexPath(path)
	index, err := p.fs.Stat(indexPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		p.logger.Info("no partition index found", "file", path)
		if err := p.Generate(path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("could not stat partition index: %w", err)
	case source.ModTime().After(index.ModTime()):
		p.logger.Info("partition index is stale", "file", path, "source", source.ModTime(), "index", index.ModTime())
		if err := p.Generate(path); err != nil {
			return nil, err
		}
	}

	lengths, err := p.readIndex(indexPath)
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, l := range lengths {
		sum += int64(l)
	}
	if sum != source.Size() {
		return nil, fmt.Errorf("%w: %s covers %d bytes but %s has %d", ErrIndexCorrupt, indexPath, sum, path, source.Size())
	}

	parts := make([]Partition, 0, len(lengths))
	var offset int64
	for _, l := range lengths {
		if l > 0 {
			parts = append(parts, Partition{fs: p.fs, Path: path, Offset: offset, Length: int64(l)})
		}
		offset += int64(l)
	}
	p.logger.Debug("loaded partitions", "file", path, "count", len(parts))
	return parts, nil
}

func (p *Partitioner) readIndex(indexPath string) ([]uint32, error) {
	b, err := afero.ReadFile(p.fs, indexPath)
	if err != nil {
		return nil, fmt.Errorf("could not read partition index: %w", err)
	}
	lengths, err := decodeIndex(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", indexPath, err)
	}
	return lengths, nil
}

// Generate scans the file once and writes its index, replacing any
// existing one.
func (p *Partitioner) Generate(path string) error {
	p.logger.Info("generating partition index", "file", path)

	lengths, err := p.scan(path)
	if err != nil {
		return err
	}

	indexPath := p.IndexPath(path)
	tmp := indexPath + ".tmp"
	if err := afero.WriteFile(p.fs, tmp, encodeIndex(lengths), 0o644); err != nil {
		return fmt.Errorf("could not write partition index: %w", err)
	}
	if err := p.fs.Rename(tmp, indexPath); err != nil {
		return fmt.Errorf("could not move partition index in place: %w", err)
	}

	p.logger.Info("partition index generated", "file", path, "chunks", len(lengths))
	return nil
}

func (p *Partitioner) scan(path string) ([]uint32, error) {
	f, err := p.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open input file: %w", err)
	}
	defer f.Close()

	var lengths []uint32
	var chunk int64
	lines := 0
	buf := make([]byte, scanBufferSize)
	first := true

	for {
		n, err := f.Read(buf)
		data := buf[:n]
		if first && n > 0 {
			if helper.IsCompressed(data) {
				return nil, fmt.Errorf("%s: %w", path, ErrCompressedInput)
			}
			first = false
		}
		for len(data) > 0 {
			i := bytes.IndexByte(data, '\n')
			if i < 0 {
				chunk += int64(len(data))
				break
			}
			chunk += int64(i + 1)
			data = data[i+1:]
			lines++
			if lines == p.batchLines {
				l, err := checkLength(chunk)
				if err != nil {
					return nil, err
				}
				lengths = append(lengths, l)
				chunk, lines = 0, 0
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("could not read input file: %w", err)
		}
	}

	if chunk > 0 {
		l, err := checkLength(chunk)
		if err != nil {
			return nil, err
		}
		lengths = append(lengths, l)
	}
	return lengths, nil
}

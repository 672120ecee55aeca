// Package archive stores zstd-compressed copies of trace logs.
package archive

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/DataDog/zstd"

	"github.com/pithecene-io/workbench/iox"
)

// Ext is the archive file extension.
const Ext = ".zst"

// Stats reports the sizes of one archive operation.
type Stats struct {
	Uncompressed int64
	Compressed   int64
}

// Ratio returns compressed/uncompressed, or 0 for an empty input.
func (s Stats) Ratio() float64 {
	if s.Uncompressed == 0 {
		return 0
	}
	return float64(s.Compressed) / float64(s.Uncompressed)
}

// Write compresses the file at src into dest. dest is replaced atomically.
func Write(dest, src string) (Stats, error) {
	in, err := os.Open(src)
	if err != nil {
		return Stats{}, err
	}
	defer iox.DiscardClose(in)

	var stats Stats
	err = writeAtomic(dest, func(out io.Writer) error {
		counter := &countingWriter{w: out}
		zw := zstd.NewWriter(counter)
		n, err := io.Copy(zw, in)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		stats = Stats{Uncompressed: n, Compressed: counter.n}
		return err
	})
	if err != nil {
		return Stats{}, fmt.Errorf("archive %s: %w", filepath.Base(src), err)
	}
	return stats, nil
}

// Read returns the decompressed contents of the archive at path.
func Read(path string) ([]byte, error) {
	in, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer iox.DiscardClose(in)

	zr := zstd.NewReader(in)
	defer iox.DiscardClose(zr)
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read archive %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// Restore decompresses the archive at path into dest, replacing it
// atomically.
func Restore(dest, path string) error {
	data, err := Read(path)
	if err != nil {
		return err
	}
	return writeAtomic(dest, func(out io.Writer) error {
		_, err := out.Write(data)
		return err
	})
}

func writeAtomic(dest string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	err = fill(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

package wiiofs

import (
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/wiiofs/xiso"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

// fs is the filesystem used to open disc images. Tests
// substitute an in-memory afero.Fs.
var fs afero.Fs = afero.NewOsFs()

// RawImage is a byte-addressable random-access view over a disc image file.
// It never interprets the bytes it serves; every higher layer (DiscContainer,
// Partition, FileTree) is built on top of it.
type RawImage struct {
	r readerutil.SizeReaderAt
	c []io.Closer
}

// OpenRawImage opens name as a disc image. If name is the first part of a
// split image (see the xiso package for the naming convention), the
// remaining parts are discovered and presented as one contiguous reader.
func OpenRawImage(name string) (*RawImage, error) {
	if r, closers, err := xiso.Open(fs, name); err == nil {
		return NewRawImage(r, closers...), nil
	} else if !errors.Is(err, xiso.ErrNotSplit) {
		return nil, fmt.Errorf("wiiofs: open %s: %w", name, err)
	}

	f, err := fs.Open(name)
	if err != nil {
		return nil, fmt.Errorf("wiiofs: open %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		return nil, multierror.Append(fmt.Errorf("wiiofs: stat %s: %w", name, err), f.Close())
	}

	return &RawImage{
		r: io.NewSectionReader(f, 0, info.Size()),
		c: []io.Closer{f},
	}, nil
}

// NewRawImage wraps an already-open SizeReaderAt (e.g. a split-image
// assembly produced by the xiso package) as a RawImage. closers are closed,
// in order, by Close.
func NewRawImage(r readerutil.SizeReaderAt, closers ...io.Closer) *RawImage {
	return &RawImage{r: r, c: closers}
}

// Size returns the total size of the image in bytes.
func (i *RawImage) Size() int64 {
	return i.r.Size()
}

// Close releases any underlying file handles. Errors from each closed part
// are aggregated.
func (i *RawImage) Close() error {
	var err error
	for _, c := range i.c {
		if cerr := c.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}
	return err
}

// Read returns exactly size bytes starting at offset. It fails with
// ErrShortRead if the image ends before size bytes are available.
func (i *RawImage) Read(offset uint64, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}

	buf := make([]byte, size)
	n, err := i.r.ReadAt(buf, int64(offset))
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fmt.Errorf("wiiofs: read %d bytes at %d: %w", size, offset, ErrShortRead)
		}
		return nil, fmt.Errorf("wiiofs: read %d bytes at %d: %w", size, offset, err)
	}
	if n != size {
		return nil, fmt.Errorf("wiiofs: read %d bytes at %d: %w", size, offset, ErrShortRead)
	}
	return buf, nil
}

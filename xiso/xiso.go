/*
Package xiso assembles a Wii disc image that has been split across several
files back into one contiguous, randomly-addressable stream.

Large Wii dumps are conventionally split to fit old FAT32-based backup media,
named "<image>.part1", "<image>.part2", and so on. Open locates every
contiguous part following the first and presents them as a single
readerutil.SizeReaderAt, the same role go4.org/readerutil's MultiReaderAt
plays for bodgit/wud's multipart ".wud" images.
*/
package xiso

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"go4.org/readerutil"
)

// partSuffix matches the conventional first-part suffix, e.g. "foo.iso.part1".
var partSuffix = regexp.MustCompile(`^(.*\.part)(\d+)$`)

// ErrNotSplit is returned by Open when name doesn't look like the first part
// of a split image; callers should fall back to opening it as a single file.
var ErrNotSplit = errors.New("xiso: not a split image")

// Open opens name as the first part of a split disc image and returns a
// SizeReaderAt spanning every part, along with the closers for each
// underlying file part (in part order). Parts are required to be
// consecutively numbered starting at the number found in name; the first
// missing number ends the sequence.
func Open(fs afero.Fs, name string) (readerutil.SizeReaderAt, []io.Closer, error) {
	m := partSuffix.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return nil, nil, ErrNotSplit
	}

	first, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, nil, fmt.Errorf("xiso: bad part number in %s: %w", name, err)
	}

	dir := filepath.Dir(name)
	prefix := m[1]

	var (
		parts   []readerutil.SizeReaderAt
		closers []io.Closer
	)

	for n := first; ; n++ {
		partName := filepath.Join(dir, fmt.Sprintf("%s%d", prefix, n))

		f, err := fs.Open(partName)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return nil, nil, closeAll(closers, err)
		}

		info, err := f.Stat()
		if err != nil {
			closers = append(closers, f)
			return nil, nil, closeAll(closers, err)
		}

		parts = append(parts, io.NewSectionReader(f, 0, info.Size()))
		closers = append(closers, f)
	}

	if len(parts) == 0 {
		return nil, nil, fmt.Errorf("xiso: %s: %w", name, ErrNotSplit)
	}

	return readerutil.NewMultiReaderAt(parts...), closers, nil
}

func closeAll(closers []io.Closer, cause error) error {
	err := cause
	for _, c := range closers {
		if cerr := c.Close(); cerr != nil {
			err = multierror.Append(err, cerr)
		}
	}
	return err
}

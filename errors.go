package wiiofs

import "errors"

// Sentinel errors returned by the decode pipeline. Callers should compare
// against these with errors.Is; lower layers wrap them with context via
// fmt.Errorf("...: %w", ...).
var (
	// ErrInvalidMagic is returned by Open when the disc header's magic
	// number doesn't match the expected Wii value.
	ErrInvalidMagic = errors.New("wiiofs: invalid disc magic")

	// ErrMalformedTable is returned when a volume-group or partition
	// table's declared counts or offsets are out of range.
	ErrMalformedTable = errors.New("wiiofs: malformed partition table")

	// ErrMalformedHeader is returned when a partition header's fields
	// are inconsistent, e.g. data_size runs past the end of the image.
	ErrMalformedHeader = errors.New("wiiofs: malformed partition header")

	// ErrMalformedFST is returned when the file-system table can't be
	// parsed consistently with its declared descriptor count.
	ErrMalformedFST = errors.New("wiiofs: malformed file system table")

	// ErrShortRead is returned when a read runs past the available bytes
	// of its backing source.
	ErrShortRead = errors.New("wiiofs: short read")

	// ErrNotFound is returned when a path component doesn't exist.
	ErrNotFound = errors.New("wiiofs: not found")

	// ErrNotADirectory is returned when a path operation expects a
	// directory but finds a file.
	ErrNotADirectory = errors.New("wiiofs: not a directory")

	// ErrIsADirectory is returned when opening a path that names a
	// directory.
	ErrIsADirectory = errors.New("wiiofs: is a directory")

	// ErrNotAFile is returned when querying file-only metadata (size) on
	// a directory.
	ErrNotAFile = errors.New("wiiofs: not a file")

	// ErrInvalidArgument is returned by Seek when the resulting position
	// would be negative.
	ErrInvalidArgument = errors.New("wiiofs: invalid argument")

	// ErrOutOfRange is returned when a logical offset or cluster index
	// falls outside the partition's decrypted data stream.
	ErrOutOfRange = errors.New("wiiofs: out of range")
)

package wiiofs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/bits-and-blooms/bitset"
)

const (
	fstOffsetPos      = 0x424
	descriptorSize    = 12
	maxNameLength     = 255
	directoryFlagByte = 0xFF000000
)

// NodeKind distinguishes a File from a Directory entry in the file tree.
type NodeKind int

const (
	// KindFile marks a leaf node with a data offset and size.
	KindFile NodeKind = iota
	// KindDirectory marks an interior node with named children.
	KindDirectory
)

// Node is one entry of the parsed file-system table: either a File with a
// data offset and size, or a Directory with an ordered set of children.
type Node struct {
	Kind NodeKind

	// Valid when Kind == KindFile.
	DataOffset uint32
	Size       uint32

	// Valid when Kind == KindDirectory. names preserves FST encounter
	// order; children is keyed the same way for O(1) lookup.
	names    []string
	children map[string]*Node
}

// Names returns a directory node's child names in the order they were
// encountered during the FST parse. Returns nil for a file node.
func (n *Node) Names() []string {
	if n.Kind != KindDirectory {
		return nil
	}
	out := make([]string, len(n.names))
	copy(out, n.names)
	return out
}

func (n *Node) child(name string) (*Node, bool) {
	if n.Kind != KindDirectory {
		return nil, false
	}
	c, ok := n.children[name]
	return c, ok
}

func (n *Node) addChild(name string, child *Node) {
	if _, exists := n.children[name]; !exists {
		n.names = append(n.names, name)
	}
	n.children[name] = child
}

// FileTree parses a partition's FST once and serves path queries against the
// resulting tree for the lifetime of the partition.
type FileTree struct {
	part *Partition
	root *Node
}

// BuildFileTree locates and parses part's FST.
func BuildFileTree(part *Partition) (*FileTree, error) {
	raw, err := part.Read(fstOffsetPos, 4)
	if err != nil {
		return nil, fmt.Errorf("wiiofs: read FST offset: %w", err)
	}
	fstOffset := uint64(binary.BigEndian.Uint32(raw)) * 4

	b := &fstBuilder{part: part, fstOffset: fstOffset}

	rootDesc, err := b.descriptor(0)
	if err != nil {
		return nil, err
	}
	if rootDesc.kind != KindDirectory {
		return nil, fmt.Errorf("wiiofs: root FST entry is not a directory: %w", ErrMalformedFST)
	}

	n := rootDesc.sizeField // total descriptor count N
	b.count = n
	b.nameTableOffset = fstOffset + uint64(n)*descriptorSize
	b.visited = bitset.New(uint(n))

	next, _, root, err := b.parse(0)
	if err != nil {
		return nil, err
	}
	if next != n {
		return nil, fmt.Errorf("wiiofs: FST parse consumed %d of %d descriptors: %w", next, n, ErrMalformedFST)
	}

	return &FileTree{part: part, root: root}, nil
}

type rawDescriptor struct {
	kind      NodeKind
	nameOff   uint32
	dataOff   uint32
	sizeField uint32
}

type fstBuilder struct {
	part            *Partition
	fstOffset       uint64
	count           uint32
	nameTableOffset uint64
	visited         *bitset.BitSet
}

func (b *fstBuilder) descriptor(idx uint32) (rawDescriptor, error) {
	raw, err := b.part.Read(b.fstOffset+uint64(idx)*descriptorSize, descriptorSize)
	if err != nil {
		return rawDescriptor{}, fmt.Errorf("wiiofs: read FST descriptor %d: %w", idx, err)
	}

	nameField := binary.BigEndian.Uint32(raw[0:4])
	dataOff := binary.BigEndian.Uint32(raw[4:8])
	size := binary.BigEndian.Uint32(raw[8:12])

	kind := KindFile
	if nameField&directoryFlagByte != 0 {
		kind = KindDirectory
	}

	return rawDescriptor{
		kind:      kind,
		nameOff:   nameField &^ directoryFlagByte,
		dataOff:   dataOff,
		sizeField: size,
	}, nil
}

func (b *fstBuilder) name(idx uint32, nameOff uint32) (string, error) {
	if idx == 0 {
		return "", nil
	}

	raw, err := b.part.Read(b.nameTableOffset+uint64(nameOff), maxNameLength+1)
	if err != nil {
		return "", fmt.Errorf("wiiofs: read FST name at offset %d: %w", nameOff, err)
	}

	if i := bytes.IndexByte(raw, 0); i >= 0 {
		return string(raw[:i]), nil
	}
	return "", fmt.Errorf("wiiofs: unterminated FST name at offset %d: %w", nameOff, ErrMalformedFST)
}

// parse implements the recursive-descent build algorithm from spec.md §4.4.
// It returns the index one past the last descriptor consumed, the node's own
// name, and the node itself.
func (b *fstBuilder) parse(idx uint32) (uint32, string, *Node, error) {
	if idx >= b.count {
		return 0, "", nil, fmt.Errorf("wiiofs: FST descriptor index %d out of range: %w", idx, ErrMalformedFST)
	}
	if b.visited.Test(uint(idx)) {
		return 0, "", nil, fmt.Errorf("wiiofs: FST descriptor %d visited twice: %w", idx, ErrMalformedFST)
	}
	b.visited.Set(uint(idx))

	desc, err := b.descriptor(idx)
	if err != nil {
		return 0, "", nil, err
	}

	name, err := b.name(idx, desc.nameOff)
	if err != nil {
		return 0, "", nil, err
	}

	if desc.kind == KindFile {
		return idx + 1, name, &Node{
			Kind:       KindFile,
			DataOffset: desc.dataOff * 4,
			Size:       desc.sizeField,
		}, nil
	}

	dir := &Node{
		Kind:     KindDirectory,
		children: make(map[string]*Node),
	}

	j := idx + 1
	for j < desc.sizeField {
		if j >= b.count {
			return 0, "", nil, fmt.Errorf("wiiofs: directory %d subtree runs past descriptor count: %w", idx, ErrMalformedFST)
		}

		next, childName, child, err := b.parse(j)
		if err != nil {
			return 0, "", nil, err
		}
		dir.addChild(childName, child)
		j = next
	}

	return j, name, dir, nil
}

func splitPath(path string) []string {
	var parts []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			parts = append(parts, c)
		}
	}
	return parts
}

// resolve walks path from the root, returning ErrNotFound if a component is
// missing and ErrNotADirectory if a non-final component names a file.
func (t *FileTree) resolve(path string) (*Node, error) {
	n := t.root
	for _, comp := range splitPath(path) {
		if n.Kind != KindDirectory {
			return nil, fmt.Errorf("wiiofs: %q: %w", path, ErrNotADirectory)
		}
		child, ok := n.child(comp)
		if !ok {
			return nil, fmt.Errorf("wiiofs: %q: %w", path, ErrNotFound)
		}
		n = child
	}
	return n, nil
}

// Exists reports whether path names any node, file or directory.
func (t *FileTree) Exists(path string) bool {
	_, err := t.resolve(path)
	return err == nil
}

// IsFile reports whether path names a file.
func (t *FileTree) IsFile(path string) bool {
	n, err := t.resolve(path)
	return err == nil && n.Kind == KindFile
}

// IsDir reports whether path names a directory.
func (t *FileTree) IsDir(path string) bool {
	n, err := t.resolve(path)
	return err == nil && n.Kind == KindDirectory
}

// ListDir returns the direct child names of the directory at path, in FST
// encounter order.
func (t *FileTree) ListDir(path string) ([]string, error) {
	n, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindDirectory {
		return nil, fmt.Errorf("wiiofs: %q: %w", path, ErrNotADirectory)
	}
	return n.Names(), nil
}

// SizeOf returns the byte size of the file at path.
func (t *FileTree) SizeOf(path string) (uint32, error) {
	n, err := t.resolve(path)
	if err != nil {
		return 0, err
	}
	if n.Kind != KindFile {
		return 0, fmt.Errorf("wiiofs: %q: %w", path, ErrNotAFile)
	}
	return n.Size, nil
}

// StatKind reports whether path is a file or directory.
func (t *FileTree) StatKind(path string) (NodeKind, error) {
	n, err := t.resolve(path)
	if err != nil {
		return 0, err
	}
	return n.Kind, nil
}

// Open returns a FileHandle for the file at path.
func (t *FileTree) Open(path string) (*FileHandle, error) {
	n, err := t.resolve(path)
	if err != nil {
		return nil, err
	}
	if n.Kind != KindFile {
		return nil, fmt.Errorf("wiiofs: %q: %w", path, ErrIsADirectory)
	}
	return &FileHandle{part: t.part, offset: uint64(n.DataOffset), size: uint64(n.Size)}, nil
}

// FileHandle is a cursor over one file's decrypted byte range.
type FileHandle struct {
	part   *Partition
	offset uint64 // absolute logical offset of the file's first byte
	size   uint64
	pos    int64
}

// Size returns the file's total size in bytes.
func (h *FileHandle) Size() uint64 {
	return h.size
}

// Tell returns the current read position.
func (h *FileHandle) Tell() int64 {
	return h.pos
}

// Seek repositions the handle per io.Seeker semantics. Positions past Size
// are permitted; subsequent reads simply return no bytes.
func (h *FileHandle) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = h.pos
	case io.SeekEnd:
		base = int64(h.size)
	default:
		return 0, fmt.Errorf("wiiofs: seek whence %d: %w", whence, ErrInvalidArgument)
	}

	pos := base + offset
	if pos < 0 {
		return 0, fmt.Errorf("wiiofs: seek to %d: %w", pos, ErrInvalidArgument)
	}

	h.pos = pos
	return pos, nil
}

// Read returns up to n bytes starting at the current position; n < 0 means
// "the rest of the file". It returns an empty slice once the position
// reaches or passes Size.
func (h *FileHandle) Read(n int) ([]byte, error) {
	if h.pos >= int64(h.size) {
		return nil, nil
	}

	remaining := int64(h.size) - h.pos
	if n < 0 || int64(n) > remaining {
		n = int(remaining)
	}
	if n == 0 {
		return nil, nil
	}

	data, err := h.part.Read(h.offset+uint64(h.pos), n)
	if err != nil {
		return nil, err
	}

	h.pos += int64(len(data))
	return data, nil
}

// Close is a no-op; FileHandle owns no OS resource.
func (h *FileHandle) Close() error {
	return nil
}

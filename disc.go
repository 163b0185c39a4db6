package wiiofs

import (
	"encoding/binary"
	"fmt"
)

const (
	discMagic uint32 = 0x5D1C9EA3

	headerOffset   = 0x0
	headerSize     = 96
	vgTableOffset  = 0x40000
	numVolumeGroup = 4
	vgEntrySize    = 8
	ptEntrySize    = 8

	// maxPartitionsPerGroup rejects corrupted tables before they cause a
	// multi-gigabyte read loop.
	maxPartitionsPerGroup = 256
)

// DiscMetadata is the disc-level information read once at open: game code,
// region, maker, version and title. It never changes after Open returns.
type DiscMetadata struct {
	DiscID      byte
	GameCode    [2]byte
	RegionCode  byte
	MakerCode   [2]byte
	DiscNumber  uint8
	DiscVersion uint8
	Magic       uint32
	Title       string
}

// PartitionEntry describes one entry of a volume group's partition table.
// Type 0 denotes a game partition; anything else (update, channel, ...) is
// enumerable but not decryptable by this package.
type PartitionEntry struct {
	VolumeGroup  int
	IndexInGroup int
	ImageOffset  uint64
	Type         uint32
}

// DiscContainer parses a disc image's header and partition tables. It holds
// no mutable state past Open.
type DiscContainer struct {
	image    *RawImage
	metadata DiscMetadata
	entries  []PartitionEntry
}

// OpenDiscContainer reads and validates the disc header and every volume
// group's partition table from image.
func OpenDiscContainer(image *RawImage) (*DiscContainer, error) {
	d := &DiscContainer{image: image}

	meta, err := d.readMetadata()
	if err != nil {
		return nil, err
	}
	d.metadata = meta

	entries, err := d.readPartitionTables()
	if err != nil {
		return nil, err
	}
	d.entries = entries

	return d, nil
}

func (d *DiscContainer) readMetadata() (DiscMetadata, error) {
	raw, err := d.image.Read(headerOffset, headerSize)
	if err != nil {
		return DiscMetadata{}, fmt.Errorf("wiiofs: read disc header: %w", err)
	}

	m := DiscMetadata{
		DiscID:      raw[0x00],
		GameCode:    [2]byte{raw[0x01], raw[0x02]},
		RegionCode:  raw[0x03],
		MakerCode:   [2]byte{raw[0x04], raw[0x05]},
		DiscNumber:  raw[0x06],
		DiscVersion: raw[0x07],
		Magic:       binary.BigEndian.Uint32(raw[0x18:0x1C]),
	}

	if m.Magic != discMagic {
		return DiscMetadata{}, fmt.Errorf("wiiofs: magic %#08x: %w", m.Magic, ErrInvalidMagic)
	}

	title := raw[0x20:0x60]
	if nul := indexByte(title, 0); nul >= 0 {
		title = title[:nul]
	}
	m.Title = string(title)

	return m, nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

func (d *DiscContainer) readPartitionTables() ([]PartitionEntry, error) {
	var entries []PartitionEntry

	for vg := 0; vg < numVolumeGroup; vg++ {
		raw, err := d.image.Read(vgTableOffset+uint64(vg*vgEntrySize), vgEntrySize)
		if err != nil {
			return nil, fmt.Errorf("wiiofs: read volume group %d: %w", vg, err)
		}

		count := binary.BigEndian.Uint32(raw[0:4])
		tableOffset := uint64(binary.BigEndian.Uint32(raw[4:8])) * 4

		if count == 0 {
			continue
		}
		if count > maxPartitionsPerGroup {
			return nil, fmt.Errorf("wiiofs: volume group %d declares %d partitions: %w", vg, count, ErrMalformedTable)
		}
		if tableOffset+uint64(count)*ptEntrySize > uint64(d.image.Size()) {
			return nil, fmt.Errorf("wiiofs: volume group %d partition table at %#x runs past image end: %w", vg, tableOffset, ErrMalformedTable)
		}

		for i := uint32(0); i < count; i++ {
			praw, err := d.image.Read(tableOffset+uint64(i)*ptEntrySize, ptEntrySize)
			if err != nil {
				return nil, fmt.Errorf("wiiofs: read partition table entry vg=%d idx=%d: %w", vg, i, err)
			}

			offset := uint64(binary.BigEndian.Uint32(praw[0:4])) * 4
			ptype := binary.BigEndian.Uint32(praw[4:8])
			if offset >= uint64(d.image.Size()) {
				return nil, fmt.Errorf("wiiofs: partition vg=%d idx=%d offset %#x past image end: %w", vg, i, offset, ErrMalformedTable)
			}

			entries = append(entries, PartitionEntry{
				VolumeGroup:  vg,
				IndexInGroup: int(i),
				ImageOffset:  offset,
				Type:         ptype,
			})
		}
	}

	return entries, nil
}

// Metadata returns the disc's immutable metadata.
func (d *DiscContainer) Metadata() DiscMetadata {
	return d.metadata
}

// Partitions returns every partition entry across all four volume groups, in
// volume-group order and, within a group, declared order.
func (d *DiscContainer) Partitions() []PartitionEntry {
	out := make([]PartitionEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// GamePartitions returns the subset of Partitions whose Type is 0.
func (d *DiscContainer) GamePartitions() []PartitionEntry {
	var out []PartitionEntry
	for _, e := range d.entries {
		if e.Type == 0 {
			out = append(out, e)
		}
	}
	return out
}

package wiiofs

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/connesc/cipherio"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Nintendo's Wii common title-decryption keys, leaked by Team Twiizers.
// These never change and are not secrets specific to any disc.
var (
	masterKey       = [16]byte{0xeb, 0xe4, 0x2a, 0x22, 0x5e, 0x85, 0x93, 0xe4, 0x48, 0xd9, 0xc5, 0x45, 0x73, 0x81, 0xaa, 0xf7}
	masterKeyKorean = [16]byte{0x63, 0xb8, 0x2b, 0xb4, 0xf4, 0x61, 0x4e, 0x2e, 0x13, 0xf2, 0xfe, 0xfb, 0xba, 0x4c, 0x9b, 0x7e}
)

const (
	titleKeyOffset  = 0x1BF
	titleIDOffset   = 0x1DC
	dataStartOffset = 0x2B8
	dataSizeOffset  = 0x2BC
	partitionHeader = 1024

	clusterSize     = 0x8000
	clusterDataSize = 0x7C00
	clusterIVOffset = 0x3D0
	clusterIVSize   = 0x10

	defaultClusterCacheSize = 128
)

// Partition exposes the decrypted logical byte stream of a single Wii
// partition: title-key unwrapping happens once at construction, and reads
// are served cluster-by-cluster through a bounded LRU cache.
//
// Read is safe for concurrent use: the underlying image reader satisfies
// io.ReaderAt's concurrent-access contract, and the LRU cache guards its own
// state internally.
type Partition struct {
	image       *RawImage
	imageOffset uint64

	dataStart uint64
	dataSize  uint64

	key   [16]byte
	block cipher.Block

	cache *lru.Cache[uint32, [clusterDataSize]byte]
}

// OpenPartition unwraps entry's title key and reads its header from image.
// region is the disc's region code (DiscMetadata.RegionCode), which selects
// between the standard and Korean master keys.
func OpenPartition(image *RawImage, entry PartitionEntry, region byte) (*Partition, error) {
	return openPartitionWithCacheSize(image, entry, region, defaultClusterCacheSize)
}

func openPartitionWithCacheSize(image *RawImage, entry PartitionEntry, region byte, cacheSize int) (*Partition, error) {
	p := &Partition{
		image:       image,
		imageOffset: entry.ImageOffset,
	}

	header, err := p.readRaw(0, partitionHeader)
	if err != nil {
		return nil, fmt.Errorf("wiiofs: read partition header: %w", err)
	}

	encryptedTitleKey := header[titleKeyOffset : titleKeyOffset+16]
	titleID := header[titleIDOffset : titleIDOffset+8]

	p.dataStart = uint64(binary.BigEndian.Uint32(header[dataStartOffset:dataStartOffset+4])) * 4
	p.dataSize = uint64(binary.BigEndian.Uint32(header[dataSizeOffset:dataSizeOffset+4])) * 4

	// The raw encrypted region is a whole number of 0x8000-byte clusters,
	// each of which yields 0x7C00 bytes of logical payload; round up to
	// find how many raw bytes data_size actually requires on disc.
	numClusters := (p.dataSize + clusterDataSize - 1) / clusterDataSize
	requiredRaw := p.dataStart + numClusters*clusterSize
	if int64(p.imageOffset+requiredRaw) > image.Size() {
		return nil, fmt.Errorf("wiiofs: partition data_size runs past image end: %w", ErrMalformedHeader)
	}

	master := masterKey
	if region == 'K' {
		master = masterKeyKorean
	}

	iv := make([]byte, 16)
	copy(iv, titleID)

	masterBlock, err := aes.NewCipher(master[:])
	if err != nil {
		return nil, fmt.Errorf("wiiofs: master key cipher: %w", err)
	}
	cipher.NewCBCDecrypter(masterBlock, iv).CryptBlocks(p.key[:], encryptedTitleKey)

	p.block, err = aes.NewCipher(p.key[:])
	if err != nil {
		return nil, fmt.Errorf("wiiofs: partition key cipher: %w", err)
	}

	p.cache, err = lru.New[uint32, [clusterDataSize]byte](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("wiiofs: allocate cluster cache: %w", err)
	}

	return p, nil
}

// Key returns the unwrapped 16-byte partition decryption key. Exposed
// primarily for tests verifying deterministic key derivation.
func (p *Partition) Key() [16]byte {
	return p.key
}

// DataSize returns the logical size, in bytes, of the partition's decrypted
// data stream.
func (p *Partition) DataSize() uint64 {
	return p.dataSize
}

// readRaw reads size raw (still-encrypted or plaintext-header) bytes at
// offset relative to the start of the partition.
func (p *Partition) readRaw(offset uint64, size int) ([]byte, error) {
	return p.image.Read(p.imageOffset+offset, size)
}

// Read returns exactly size bytes of decrypted data starting at logicalOffset
// within the partition's data stream.
func (p *Partition) Read(logicalOffset uint64, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	if logicalOffset+uint64(size) > p.dataSize {
		return nil, fmt.Errorf("wiiofs: read [%d,%d) past data_size %d: %w", logicalOffset, logicalOffset+uint64(size), p.dataSize, ErrOutOfRange)
	}

	out := make([]byte, size)
	written := 0

	for size > 0 {
		idx := uint32(logicalOffset / clusterDataSize)
		within := int(logicalOffset % clusterDataSize)

		cluster, err := p.readCluster(idx)
		if err != nil {
			return nil, err
		}

		n := clusterDataSize - within
		if n > size {
			n = size
		}

		copy(out[written:written+n], cluster[within:within+n])

		written += n
		size -= n
		logicalOffset += uint64(n)
	}

	return out, nil
}

// readCluster returns the decrypted 0x7C00-byte payload of cluster idx,
// consulting (and populating) the LRU cache.
func (p *Partition) readCluster(idx uint32) ([clusterDataSize]byte, error) {
	if cluster, ok := p.cache.Get(idx); ok {
		return cluster, nil
	}

	raw, err := p.readRaw(p.dataStart+uint64(idx)*clusterSize, clusterSize)
	if err != nil {
		return [clusterDataSize]byte{}, fmt.Errorf("wiiofs: read cluster %d: %w", idx, err)
	}

	iv := raw[clusterIVOffset : clusterIVOffset+clusterIVSize]

	r := cipherio.NewBlockReader(
		bytes.NewReader(raw[0x400:]),
		cipher.NewCBCDecrypter(p.block, iv),
	)

	var cluster [clusterDataSize]byte
	if _, err := io.ReadFull(r, cluster[:]); err != nil {
		return [clusterDataSize]byte{}, fmt.Errorf("wiiofs: decrypt cluster %d: %w", idx, err)
	}

	p.cache.Add(idx, cluster)

	return cluster, nil
}

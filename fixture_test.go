package wiiofs

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
)

// testFixture is a from-scratch, in-memory Wii disc image built byte-by-byte
// to satisfy the on-disc format described in spec.md §3-4: one volume group
// with one game partition, a three-cluster encrypted data stream, and a
// small FST describing:
//
//	/
//	├── file1   (20 bytes)
//	└── sub/
//	    └── file2 (10 bytes)
type testFixture struct {
	image           []byte
	partitionOffset uint64
	region          byte
	partitionKey    [16]byte
	titleID         [8]byte

	file1Offset, file1Size uint64
	file1Content           []byte
	file2Offset, file2Size uint64
	file2Content           []byte
}

func buildTestFixture() testFixture {
	const (
		ptOffset        = uint64(0x40100)
		partitionOffset = uint64(0x50000)
		dataStart       = uint64(0x8000)
		numClusters     = 3
	)

	fx := testFixture{
		partitionOffset: partitionOffset,
		region:          'E',
		partitionKey:    [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		titleID:         [8]byte{0x00, 0x01, 0x00, 0x02, 0xAA, 0xBB, 0xCC, 0xDD},
	}

	dataSize := uint64(numClusters) * clusterDataSize

	// partitionHeader bytes live at [partitionOffset, partitionOffset+partitionHeader);
	// the cluster stream starts at partitionOffset+dataStart, which must be >= that.
	if dataStart < partitionHeader {
		panic("fixture: dataStart must be past the partition header")
	}
	totalSize := partitionOffset + dataStart + uint64(numClusters)*clusterSize + 0x100

	image := make([]byte, totalSize)

	// --- disc header ---
	image[0x00] = 0x01                       // disc_id
	copy(image[0x01:0x03], []byte("TG"))     // game_code
	image[0x03] = fx.region                  // region_code
	copy(image[0x04:0x06], []byte("01"))     // maker_code
	image[0x06] = 0                          // disc_number
	image[0x07] = 0                          // disc_version
	binary.BigEndian.PutUint32(image[0x18:0x1C], discMagic)
	copy(image[0x20:0x60], []byte("TEST GAME\x00"))

	// --- volume group table ---
	binary.BigEndian.PutUint32(image[vgTableOffset+0:vgTableOffset+4], 1)
	binary.BigEndian.PutUint32(image[vgTableOffset+4:vgTableOffset+8], uint32(ptOffset/4))
	for vg := 1; vg < numVolumeGroup; vg++ {
		off := vgTableOffset + vg*vgEntrySize
		binary.BigEndian.PutUint32(image[off:off+4], 0)
		binary.BigEndian.PutUint32(image[off+4:off+8], 0)
	}

	// --- partition table (one entry, type 0) ---
	binary.BigEndian.PutUint32(image[ptOffset+0:ptOffset+4], uint32(partitionOffset/4))
	binary.BigEndian.PutUint32(image[ptOffset+4:ptOffset+8], 0)

	// --- plaintext logical data stream ---
	plain := make([]byte, dataSize)

	const (
		fstOffset = uint64(0x8000)
		descCount = uint32(4)
	)
	nameTableOffset := fstOffset + uint64(descCount)*descriptorSize

	names := []byte("file1\x00sub\x00file2\x00")
	copy(plain[nameTableOffset:], names)

	file1NameOff := uint32(0)
	subNameOff := uint32(6)
	file2NameOff := uint32(10)

	file1Off := uint64(0x9000)
	file1Size := uint64(20)
	file2Off := uint64(0xF900)
	file2Size := uint64(10)

	fx.file1Content = []byte("file one content!!!!")[:file1Size]
	fx.file2Content = []byte("file2bytes")[:file2Size]
	copy(plain[file1Off:], fx.file1Content)
	copy(plain[file2Off:], fx.file2Content)

	fx.file1Offset, fx.file1Size = file1Off, file1Size
	fx.file2Offset, fx.file2Size = file2Off, file2Size

	putDescriptor := func(idx uint32, nameField, dataOffDiv4, size uint32) {
		off := fstOffset + uint64(idx)*descriptorSize
		binary.BigEndian.PutUint32(plain[off:off+4], nameField)
		binary.BigEndian.PutUint32(plain[off+4:off+8], dataOffDiv4)
		binary.BigEndian.PutUint32(plain[off+8:off+12], size)
	}

	putDescriptor(0, 0x01000000, 0, descCount)                     // root directory
	putDescriptor(1, file1NameOff, uint32(file1Off/4), uint32(file1Size)) // file1
	putDescriptor(2, 0x01000000|subNameOff, 0, 4)                  // sub/ directory, subtree [3,4)
	putDescriptor(3, file2NameOff, uint32(file2Off/4), uint32(file2Size)) // sub/file2

	binary.BigEndian.PutUint32(plain[0x424:0x428], uint32(fstOffset/4))

	// --- partition key wrapping ---
	master := masterKey
	if fx.region == 'K' {
		master = masterKeyKorean
	}
	masterBlock, err := aes.NewCipher(master[:])
	if err != nil {
		panic(err)
	}
	keyIV := make([]byte, 16)
	copy(keyIV, fx.titleID[:])
	encryptedTitleKey := make([]byte, 16)
	cipher.NewCBCEncrypter(masterBlock, keyIV).CryptBlocks(encryptedTitleKey, fx.partitionKey[:])

	header := make([]byte, partitionHeader)
	copy(header[titleKeyOffset:titleKeyOffset+16], encryptedTitleKey)
	copy(header[titleIDOffset:titleIDOffset+8], fx.titleID[:])
	binary.BigEndian.PutUint32(header[dataStartOffset:dataStartOffset+4], uint32(dataStart/4))
	binary.BigEndian.PutUint32(header[dataSizeOffset:dataSizeOffset+4], uint32(dataSize/4))
	copy(image[partitionOffset:partitionOffset+partitionHeader], header)

	// --- encrypted cluster stream ---
	partitionBlock, err := aes.NewCipher(fx.partitionKey[:])
	if err != nil {
		panic(err)
	}

	for c := 0; c < numClusters; c++ {
		clusterOff := partitionOffset + dataStart + uint64(c)*clusterSize
		raw := image[clusterOff : clusterOff+clusterSize]

		iv := make([]byte, 16)
		for i := range iv {
			iv[i] = byte(c*16 + i)
		}
		copy(raw[clusterIVOffset:clusterIVOffset+clusterIVSize], iv)

		plaintext := plain[c*clusterDataSize : (c+1)*clusterDataSize]
		cipher.NewCBCEncrypter(partitionBlock, iv).CryptBlocks(raw[0x400:], plaintext)
	}

	fx.image = image
	return fx
}

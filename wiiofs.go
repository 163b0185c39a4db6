/*
Package wiiofs implements read-only access to the contents of a Wii optical
disc image. Given a raw disc image file, it exposes a hierarchical
filesystem view of the files stored inside a selected game partition:
consumers read bytes from individual files by path, enumerate directories,
and inspect disc-level metadata (game code, region, title).

The decode pipeline is a stack of four layers, leaves first: RawImage reads
bytes from the image file; DiscContainer parses the disc header and
partition tables; Partition unwraps a partition's title key and exposes its
decrypted logical byte stream through a clustered AES-CBC cipher and a
bounded LRU cache; FileTree parses the file-system table and resolves paths
against it.

Example usage:

	image, err := wiiofs.OpenRawImage("game.iso")
	if err != nil {
		panic(err)
	}
	defer image.Close()

	mount, err := wiiofs.Open(image, 0)
	if err != nil {
		panic(err)
	}

	f, err := mount.Tree.Open("/files/message.bin")
	if err != nil {
		panic(err)
	}
	data, err := f.Read(-1)
*/
package wiiofs

import "fmt"

// Mount ties together a disc's container, a selected game partition, and
// that partition's parsed file tree — everything a consumer needs to read
// files out of one partition of one disc image.
type Mount struct {
	Disc      *DiscContainer
	Partition *Partition
	Tree      *FileTree
}

// Open parses image's disc container and mounts the gameIndex'th game
// partition (i.e. the gameIndex'th entry of DiscContainer.GamePartitions,
// not the raw partition table — matching the original mount tool's
// argument contract).
func Open(image *RawImage, gameIndex int) (*Mount, error) {
	disc, err := OpenDiscContainer(image)
	if err != nil {
		return nil, err
	}

	games := disc.GamePartitions()
	if gameIndex < 0 || gameIndex >= len(games) {
		return nil, fmt.Errorf("wiiofs: game partition index %d out of range (%d available)", gameIndex, len(games))
	}

	part, err := OpenPartition(image, games[gameIndex], disc.Metadata().RegionCode)
	if err != nil {
		return nil, err
	}

	tree, err := BuildFileTree(part)
	if err != nil {
		return nil, err
	}

	return &Mount{Disc: disc, Partition: part, Tree: tree}, nil
}

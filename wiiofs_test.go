package wiiofs

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
)

func TestOpenMountEndToEnd(t *testing.T) {
	fx := buildTestFixture()

	oldFS := fs
	fs = afero.NewMemMapFs()
	defer func() { fs = oldFS }()

	if err := afero.WriteFile(fs, "game.iso", fx.image, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	image, err := OpenRawImage("game.iso")
	if err != nil {
		t.Fatalf("OpenRawImage: %v", err)
	}
	defer image.Close()

	mount, err := Open(image, 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if mount.Disc.Metadata().Title != "TEST GAME" {
		t.Fatalf("Title = %q, want TEST GAME", mount.Disc.Metadata().Title)
	}

	h, err := mount.Tree.Open("/sub/file2")
	if err != nil {
		t.Fatalf("Open(/sub/file2): %v", err)
	}
	data, err := h.Read(-1)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(data, fx.file2Content) {
		t.Fatalf("content = %q, want %q", data, fx.file2Content)
	}
}

func TestOpenMountIndexOutOfRange(t *testing.T) {
	fx := buildTestFixture()
	image := NewRawImage(&byteSliceReaderAt{fx.image})

	if _, err := Open(image, 1); err == nil {
		t.Fatal("Open with out-of-range game index: want error, got nil")
	}
}

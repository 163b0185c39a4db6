package xiso

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/spf13/afero"
)

func writeFile(t *testing.T, fs afero.Fs, name string, content []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, name, content, 0o644); err != nil {
		t.Fatalf("WriteFile(%s): %v", name, err)
	}
}

func TestOpenAssemblesParts(t *testing.T) {
	fs := afero.NewMemMapFs()

	part1 := bytes.Repeat([]byte{0xAA}, 16)
	part2 := bytes.Repeat([]byte{0xBB}, 8)
	part3 := bytes.Repeat([]byte{0xCC}, 4)

	writeFile(t, fs, "/disc/game.iso.part1", part1)
	writeFile(t, fs, "/disc/game.iso.part2", part2)
	writeFile(t, fs, "/disc/game.iso.part3", part3)

	r, closers, err := Open(fs, "/disc/game.iso.part1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if len(closers) != 3 {
		t.Fatalf("len(closers) = %d, want 3", len(closers))
	}

	want := append(append(append([]byte{}, part1...), part2...), part3...)
	if r.Size() != int64(len(want)) {
		t.Fatalf("Size() = %d, want %d", r.Size(), len(want))
	}

	got := make([]byte, len(want))
	if _, err := r.ReadAt(got, 0); err != nil && err != io.EOF {
		t.Fatalf("ReadAt: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("assembled bytes mismatch")
	}
}

func TestOpenStopsAtFirstGap(t *testing.T) {
	fs := afero.NewMemMapFs()

	writeFile(t, fs, "/disc/game.iso.part1", []byte("one"))
	writeFile(t, fs, "/disc/game.iso.part2", []byte("two"))
	// part3 intentionally missing; part4 present but must be ignored.
	writeFile(t, fs, "/disc/game.iso.part4", []byte("four"))

	r, closers, err := Open(fs, "/disc/game.iso.part1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	if r.Size() != int64(len("one")+len("two")) {
		t.Fatalf("Size() = %d, want %d", r.Size(), len("one")+len("two"))
	}
}

func TestOpenNotSplitImage(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/disc/game.iso", []byte("whole image"))

	if _, _, err := Open(fs, "/disc/game.iso"); !errors.Is(err, ErrNotSplit) {
		t.Fatalf("Open error = %v, want ErrNotSplit", err)
	}
}

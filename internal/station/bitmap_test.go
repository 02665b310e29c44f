package station

import (
	"testing"

	"github.com/talgya/freightworld/internal/cargo"
)

func TestBitmapSetClearContains(t *testing.T) {
	b := NewBitmapTileArea(10, 20, 16, 16)

	in := cargo.TileXY{X: 12, Y: 25}
	if b.Contains(in) {
		t.Error("fresh bitmap contains a tile")
	}
	b.SetTile(in)
	if !b.Contains(in) {
		t.Error("set tile not contained")
	}
	b.ClearTile(in)
	if b.Contains(in) {
		t.Error("cleared tile still contained")
	}
}

func TestBitmapIgnoresOutOfBounds(t *testing.T) {
	b := NewBitmapTileArea(0, 0, 8, 8)
	out := cargo.TileXY{X: 100, Y: 100}

	b.SetTile(out) // must not panic or affect anything
	if b.Contains(out) {
		t.Error("out-of-bounds tile reported as contained")
	}
	if b.Contains(cargo.TileXY{X: -1, Y: 0}) {
		t.Error("negative coordinate reported as contained")
	}
}

func TestBitmapIterRowOrder(t *testing.T) {
	b := NewBitmapTileArea(0, 0, 100, 3)
	want := []cargo.TileXY{
		{X: 5, Y: 0},
		{X: 70, Y: 0}, // crosses the first 64-bit word
		{X: 2, Y: 1},
		{X: 99, Y: 2},
	}
	// Set in shuffled order; iteration must come back sorted by row.
	for _, i := range []int{3, 0, 2, 1} {
		b.SetTile(want[i])
	}

	it := b.Iter()
	for i, w := range want {
		got, ok := it.Next()
		if !ok {
			t.Fatalf("iterator ended after %d tiles, want %d", i, len(want))
		}
		if got != w {
			t.Fatalf("tile %d is %v, want %v", i, got, w)
		}
	}
	if _, ok := it.Next(); ok {
		t.Error("iterator yielded more tiles than were set")
	}
}

func TestBitmapReset(t *testing.T) {
	b := NewBitmapTileArea(0, 0, 8, 8)
	b.SetTile(cargo.TileXY{X: 1, Y: 1})
	b.SetTile(cargo.TileXY{X: 7, Y: 7})
	b.Reset()
	if _, ok := b.Iter().Next(); ok {
		t.Error("tiles survived a reset")
	}
}

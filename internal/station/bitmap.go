package station

import "github.com/talgya/freightworld/internal/cargo"

// BitmapTileArea is a rectangle of tiles with one bit per tile, used for
// station catchment areas. The rectangle is fixed at construction; tiles
// outside it are never contained.
type BitmapTileArea struct {
	Left   int32
	Top    int32
	Width  int32
	Height int32
	bits   []uint64
}

// NewBitmapTileArea creates an empty bitmap covering the given rectangle.
func NewBitmapTileArea(left, top, width, height int32) *BitmapTileArea {
	if width < 0 || height < 0 {
		panic("station: bitmap area with negative extent")
	}
	words := (int(width)*int(height) + 63) / 64
	return &BitmapTileArea{
		Left:   left,
		Top:    top,
		Width:  width,
		Height: height,
		bits:   make([]uint64, words),
	}
}

func (b *BitmapTileArea) bitIndex(t cargo.TileXY) (int, bool) {
	x := t.X - b.Left
	y := t.Y - b.Top
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0, false
	}
	return int(y)*int(b.Width) + int(x), true
}

// SetTile marks a tile as part of the area. Tiles outside the rectangle
// are ignored.
func (b *BitmapTileArea) SetTile(t cargo.TileXY) {
	if i, ok := b.bitIndex(t); ok {
		b.bits[i/64] |= 1 << (i % 64)
	}
}

// ClearTile removes a tile from the area.
func (b *BitmapTileArea) ClearTile(t cargo.TileXY) {
	if i, ok := b.bitIndex(t); ok {
		b.bits[i/64] &^= 1 << (i % 64)
	}
}

// Contains reports whether the tile is part of the area.
func (b *BitmapTileArea) Contains(t cargo.TileXY) bool {
	i, ok := b.bitIndex(t)
	return ok && b.bits[i/64]&(1<<(i%64)) != 0
}

// Reset clears every tile.
func (b *BitmapTileArea) Reset() {
	clear(b.bits)
}

// Iter returns an iterator over the set tiles in row order.
func (b *BitmapTileArea) Iter() *BitmapTileIterator {
	return &BitmapTileIterator{area: b}
}

// BitmapTileIterator walks the set tiles of a BitmapTileArea.
type BitmapTileIterator struct {
	area *BitmapTileArea
	next int
}

// Next returns the next set tile, or false when the walk is done.
func (it *BitmapTileIterator) Next() (cargo.TileXY, bool) {
	total := int(it.area.Width) * int(it.area.Height)
	for i := it.next; i < total; i++ {
		if it.area.bits[i/64]&(1<<(i%64)) == 0 {
			continue
		}
		it.next = i + 1
		return cargo.TileXY{
			X: it.area.Left + int32(i%int(it.area.Width)),
			Y: it.area.Top + int32(i/int(it.area.Width)),
		}, true
	}
	it.next = total
	return cargo.TileXY{}, false
}

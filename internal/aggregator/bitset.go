package aggregator

import (
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// lineIndex accelerates the Smart strategy's grouping pass for files
// with many results: a compact per-file bitset of already-grouped line
// numbers resolves an exact-line repeat hit to its group in O(1),
// instead of the linear group scan similar() otherwise requires.
// Near-line and snippet-similarity matches still fall back to that
// linear scan — the bitset only short-circuits the common case of two
// plugins reporting the very same line.
type lineIndex struct {
	seen    map[string]*roaring.Bitmap
	groupOf map[string]int // "file\x00line" -> index into the caller's groups slice
}

func newLineIndex() *lineIndex {
	return &lineIndex{
		seen:    make(map[string]*roaring.Bitmap),
		groupOf: make(map[string]int),
	}
}

// lookup returns the group index previously recorded for (file, line),
// if any.
func (li *lineIndex) lookup(file string, line int) (int, bool) {
	if line < 0 {
		return 0, false
	}
	bm, ok := li.seen[file]
	if !ok || !bm.Contains(uint32(line)) {
		return 0, false
	}
	idx, ok := li.groupOf[lineKey(file, line)]
	return idx, ok
}

// record associates (file, line) with groupIdx for future lookups.
func (li *lineIndex) record(file string, line, groupIdx int) {
	if line < 0 {
		return
	}
	bm, ok := li.seen[file]
	if !ok {
		bm = roaring.NewBitmap()
		li.seen[file] = bm
	}
	bm.Add(uint32(line))
	li.groupOf[lineKey(file, line)] = groupIdx
}

func lineKey(file string, line int) string {
	return file + "\x00" + strconv.Itoa(line)
}

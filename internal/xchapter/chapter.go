// Package xchapter implements the Chapter: a contiguous batch of P pages
// viewable as either a typed page array or a raw byte buffer for I/O.
//
// The original source expresses this as a union of [Page; P] and [u8; B].
// Go has no union types, so — per the design note's recommendation — this is
// a tagged view over one owned []byte buffer: every page accessor reads or
// writes fixed offsets into the same backing array rather than aliasing a
// second Go value, which keeps the "two views alias identical storage"
// invariant trivially true by construction.
package xchapter

import (
	"fmt"

	"github.com/defghij/diskxerciser/internal/xerr"
	"github.com/defghij/diskxerciser/internal/xpage"
)

// Chapter is a contiguous block holding exactly Pages pages of PageBytes
// bytes each, reused across work units by one worker.
type Chapter struct {
	pages     int
	words     int
	pageBytes int
	buf       []byte
}

// New allocates a zero-initialized Chapter for `pages` pages of `words`
// payload words each.
func New(pages, words int) *Chapter {
	pageBytes := xpage.Bytes(words)
	return &Chapter{
		pages:     pages,
		words:     words,
		pageBytes: pageBytes,
		buf:       make([]byte, pages*pageBytes),
	}
}

// Pages returns the number of pages this chapter holds.
func (c *Chapter) Pages() int { return c.pages }

// PageBytes returns the byte size of a single page in this chapter.
func (c *Chapter) PageBytes() int { return c.pageBytes }

// ByteCount returns the total byte size of the chapter (Pages * PageBytes).
func (c *Chapter) ByteCount() int { return len(c.buf) }

// Zeroize clears the chapter's backing buffer, as required between partial
// writes so stale page content never leaks into a new work unit.
func (c *Chapter) Zeroize() {
	for i := range c.buf {
		c.buf[i] = 0
	}
}

// BytesAll returns the chapter's full backing buffer.
func (c *Chapter) BytesAll() []byte { return c.buf }

// MutableBytesAll returns a mutable view of the chapter's full backing
// buffer, for I/O engines that read/write the chapter as one unit.
func (c *Chapter) MutableBytesAll() []byte { return c.buf }

// BytesUpto returns the first n bytes of the chapter. n must be <=
// Pages*PageBytes.
func (c *Chapter) BytesUpto(n int) []byte {
	if n > len(c.buf) {
		panic(fmt.Sprintf("xchapter: requested %d bytes, chapter holds %d", n, len(c.buf)))
	}
	return c.buf[:n]
}

// Page decodes and returns a copy of the page at index i. Out-of-range
// indices are a programming error and panic.
func (c *Chapter) Page(i int) *xpage.Page {
	off := c.offset(i)
	p, err := xpage.Unmarshal(c.buf[off:off+c.pageBytes], c.words)
	if err != nil {
		// Unmarshal only fails on a length mismatch, which offset()
		// already rules out — this would be a bug in Chapter itself.
		panic(err)
	}
	return p
}

// SetPage encodes page into the chapter's backing buffer at index i.
func (c *Chapter) SetPage(i int, page *xpage.Page) {
	off := c.offset(i)
	if err := page.MarshalTo(c.buf[off : off+c.pageBytes]); err != nil {
		panic(err)
	}
}

// MutablePageSlice returns the writable byte range of page i, aliasing the
// chapter's backing buffer, so a caller can encode a page in place without
// going through SetPage.
func (c *Chapter) MutablePageSlice(i int) []byte {
	off := c.offset(i)
	return c.buf[off : off+c.pageBytes]
}

func (c *Chapter) offset(i int) int {
	if i < 0 || i >= c.pages {
		panic(fmt.Sprintf("xchapter: page index %d out of range [0,%d)", i, c.pages))
	}
	return i * c.pageBytes
}

// LoadBytes replaces the chapter's backing buffer with exactly-sized src,
// used after a read so the chapter's page view reflects what was read from
// disk. Returns a LayoutMismatch error if src isn't sized for this chapter.
func (c *Chapter) LoadBytes(src []byte) error {
	if len(src) != len(c.buf) {
		return xerr.New("Chapter.LoadBytes", xerr.KindLayoutMismatch,
			fmt.Errorf("got %d bytes, chapter holds %d", len(src), len(c.buf)))
	}
	copy(c.buf, src)
	return nil
}

package xchapter

import (
	"bytes"
	"testing"

	"github.com/defghij/diskxerciser/internal/xpage"
)

// TestAliasing exercises testable property 5: the byte view at
// [i*PageBytes, (i+1)*PageBytes) must equal the little-endian encoding of
// pages_all()[i] for every i.
func TestAliasing(t *testing.T) {
	const pages, words = 4, 2
	c := New(pages, words)

	for i := 0; i < pages; i++ {
		p := xpage.New(0xD7D6D5D4D3D2D1D0, 0xC7C6C5C4C3C2C1C0, uint64(i), words)
		c.SetPage(i, p)
	}

	for i := 0; i < pages; i++ {
		want := make([]byte, c.PageBytes())
		p := xpage.New(0xD7D6D5D4D3D2D1D0, 0xC7C6C5C4C3C2C1C0, uint64(i), words)
		if err := p.MarshalTo(want); err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got := c.BytesAll()[i*c.PageBytes() : (i+1)*c.PageBytes()]
		if !bytes.Equal(got, want) {
			t.Fatalf("page %d byte view mismatch:\ngot  % X\nwant % X", i, got, want)
		}
		if !c.Page(i).IsValid() {
			t.Fatalf("page %d should validate via the page view", i)
		}
	}
}

func TestZeroize(t *testing.T) {
	c := New(2, 2)
	p := xpage.New(1, 2, 3, 2)
	c.SetPage(0, p)
	c.Zeroize()
	for _, b := range c.BytesAll() {
		if b != 0 {
			t.Fatal("expected all-zero buffer after Zeroize")
		}
	}
}

func TestOutOfRangePanics(t *testing.T) {
	c := New(2, 2)
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for out-of-range page index")
		}
	}()
	c.Page(2)
}

func TestByteCountAndUpto(t *testing.T) {
	c := New(3, 1)
	if c.ByteCount() != 3*xpage.Bytes(1) {
		t.Fatalf("ByteCount = %d, want %d", c.ByteCount(), 3*xpage.Bytes(1))
	}
	if len(c.BytesUpto(xpage.Bytes(1))) != xpage.Bytes(1) {
		t.Fatal("BytesUpto should return exactly the requested prefix")
	}
}

func TestLoadBytesRejectsWrongSize(t *testing.T) {
	c := New(2, 2)
	if err := c.LoadBytes(make([]byte, 3)); err == nil {
		t.Fatal("expected LayoutMismatch for wrong-sized buffer")
	}
}

// Package xpage implements the self-describing, content-addressable page —
// the verification unit this whole exerciser is built around. A page's
// payload is a pure function of its own identity, so a page read back from
// disk can be validated without consulting any external index.
//
// On-disk layout (PageBytes = 32 + 8*W, little-endian throughout):
//
//	[0:8]    seed
//	[8:16]   file_id
//	[16:24]  page_id
//	[24:32]  mutations
//	[32:32+8*W] payload, W 64-bit words
//
// Byte-exact compatibility with this layout and with the PRNG in prng.go is
// part of the external contract: changing either invalidates existing data
// sets.
package xpage

import (
	"encoding/binary"
	"fmt"

	"github.com/defghij/diskxerciser/internal/xerr"
)

// MetadataBytes is the fixed size of a page's header.
const MetadataBytes = 32

// WordsForPageSize derives W, the number of 64-bit payload words, from a
// page size in bytes.
func WordsForPageSize(pageSize int) (int, error) {
	if pageSize <= MetadataBytes {
		return 0, xerr.New("xpage.WordsForPageSize", xerr.KindInvalidArgument,
			fmt.Errorf("page_size %d must be > %d", pageSize, MetadataBytes))
	}
	if pageSize%8 != 0 {
		return 0, xerr.New("xpage.WordsForPageSize", xerr.KindInvalidArgument,
			fmt.Errorf("page_size %d must be a multiple of 8", pageSize))
	}
	return (pageSize - MetadataBytes) / 8, nil
}

// Page is a fixed-size, 8-byte-aligned record: a 32-byte metadata header
// (seed, file_id, page_id, mutations) followed by W payload words.
type Page struct {
	Seed      uint64
	FileID    uint64
	PageID    uint64
	Mutations uint64
	Payload   []uint64 // length W
}

// Bytes returns the total on-disk size of a page holding W payload words.
func Bytes(w int) int { return MetadataBytes + 8*w }

// assembleSeed combines the four metadata fields into the single seed fed to
// the payload generator:
//
//	upper = (~file_id) << 46 | page_id << 32
//	final = (upper | seed) + mutations
func assembleSeed(seed, fileID, pageID, mutations uint64) uint64 {
	upper := (^fileID << 46) | (pageID << 32)
	return (upper | seed) + mutations
}

// New creates a populated page with mutations=0.
func New(seed, fileID, pageID uint64, w int) *Page {
	p := &Page{Seed: seed, FileID: fileID, PageID: pageID, Mutations: 0}
	p.Payload = generatePayload(assembleSeed(seed, fileID, pageID, 0), w)
	return p
}

// Reinit overwrites every metadata field and regenerates the payload.
func (p *Page) Reinit(seed, fileID, pageID, mutations uint64) {
	p.Seed = seed
	p.FileID = fileID
	p.PageID = pageID
	p.Mutations = mutations
	p.Payload = generatePayload(assembleSeed(seed, fileID, pageID, mutations), len(p.Payload))
}

// Mutate advances the mutation counter by one and regenerates the payload
// under the new identity. The baseline write/verify orchestrator never calls
// this — it exists for the opt-in mutation-workload phase.
func (p *Page) Mutate() {
	p.Mutations++
	p.Payload = generatePayload(assembleSeed(p.Seed, p.FileID, p.PageID, p.Mutations), len(p.Payload))
}

// UpdateSeed replaces the seed field and regenerates the payload.
func (p *Page) UpdateSeed(seed uint64) {
	p.Seed = seed
	p.Payload = generatePayload(assembleSeed(p.Seed, p.FileID, p.PageID, p.Mutations), len(p.Payload))
}

// UpdateFile replaces the file_id field and regenerates the payload.
func (p *Page) UpdateFile(fileID uint64) {
	p.FileID = fileID
	p.Payload = generatePayload(assembleSeed(p.Seed, p.FileID, p.PageID, p.Mutations), len(p.Payload))
}

// UpdatePage replaces the page_id field and regenerates the payload.
func (p *Page) UpdatePage(pageID uint64) {
	p.PageID = pageID
	p.Payload = generatePayload(assembleSeed(p.Seed, p.FileID, p.PageID, p.Mutations), len(p.Payload))
}

// GetMetadata returns (seed, file_id, page_id, mutations).
func (p *Page) GetMetadata() (seed, fileID, pageID, mutations uint64) {
	return p.Seed, p.FileID, p.PageID, p.Mutations
}

// ValidateWith reports whether the page's payload matches what assembling
// the given identity would produce, without mutating the receiver.
func (p *Page) ValidateWith(seed, fileID, pageID, mutations uint64) bool {
	want := generatePayload(assembleSeed(seed, fileID, pageID, mutations), len(p.Payload))
	if len(want) != len(p.Payload) {
		return false
	}
	for i := range want {
		if want[i] != p.Payload[i] {
			return false
		}
	}
	return true
}

// IsValid reports whether the page's stored metadata is internally
// consistent with its payload.
func (p *Page) IsValid() bool {
	return p.ValidateWith(p.Seed, p.FileID, p.PageID, p.Mutations)
}

// MarshalTo writes the page into buf, which must be exactly Bytes(W) long.
func (p *Page) MarshalTo(buf []byte) error {
	want := Bytes(len(p.Payload))
	if len(buf) != want {
		return xerr.New("Page.MarshalTo", xerr.KindLayoutMismatch,
			fmt.Errorf("buffer length %d != expected %d", len(buf), want))
	}
	binary.LittleEndian.PutUint64(buf[0:8], p.Seed)
	binary.LittleEndian.PutUint64(buf[8:16], p.FileID)
	binary.LittleEndian.PutUint64(buf[16:24], p.PageID)
	binary.LittleEndian.PutUint64(buf[24:32], p.Mutations)
	off := MetadataBytes
	for _, word := range p.Payload {
		binary.LittleEndian.PutUint64(buf[off:off+8], word)
		off += 8
	}
	return nil
}

// Unmarshal decodes a page of w payload words from buf, which must be
// exactly Bytes(w) long. It performs no validation of its own — callers
// check IsValid() if that matters.
func Unmarshal(buf []byte, w int) (*Page, error) {
	want := Bytes(w)
	if len(buf) != want {
		return nil, xerr.New("xpage.Unmarshal", xerr.KindLayoutMismatch,
			fmt.Errorf("buffer length %d != expected %d", len(buf), want))
	}
	p := &Page{
		Seed:      binary.LittleEndian.Uint64(buf[0:8]),
		FileID:    binary.LittleEndian.Uint64(buf[8:16]),
		PageID:    binary.LittleEndian.Uint64(buf[16:24]),
		Mutations: binary.LittleEndian.Uint64(buf[24:32]),
		Payload:   make([]uint64, w),
	}
	off := MetadataBytes
	for i := range p.Payload {
		p.Payload[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	return p, nil
}

package page

import (
	"encoding/binary"
	"errors"
)

// ErrRecordNotFound is returned by HeaderPage.GetRootID when no record
// exists for the given index name.
var ErrRecordNotFound = errors.New("page: header record not found")

// HeaderPage interprets a Page's byte array as a linear sequence of
// (uint16 name length, name bytes, int32 root page id) records, the
// directory a btree.Manager uses to find each named tree's root without
// a separate catalog page. There is no struct here beyond the wrapper:
// the records are read and written directly against the underlying
// Page.Data slice so a HeaderPage never goes stale relative to its page.
type HeaderPage struct {
	p *Page
}

// NewHeaderPage wraps an existing page (normally HeaderPageID) as a
// header directory.
func NewHeaderPage(p *Page) *HeaderPage {
	return &HeaderPage{p: p}
}

const recordHeaderLen = 2 + 4 // uint16 name length + int32 root page id

// InsertRecord appends a new (name, rootID) record, or returns false if
// the page has no room left. Names must be unique; callers update
// existing records with UpdateRecord instead of inserting a duplicate.
func (h *HeaderPage) InsertRecord(name string, rootID ID) bool {
	if _, ok := h.find(name); ok {
		return false
	}
	off := h.usedBytes()
	need := recordHeaderLen + len(name)
	if off+need > len(h.p.Data) {
		return false
	}
	buf := h.p.Data
	binary.BigEndian.PutUint16(buf[off:], uint16(len(name)))
	off += 2
	copy(buf[off:], name)
	off += len(name)
	binary.BigEndian.PutUint32(buf[off:], uint32(rootID))
	h.p.IsDirty = true
	return true
}

// UpdateRecord overwrites an existing record's root page id in place.
// Used every time a tree's root splits and the new root id must be
// persisted.
func (h *HeaderPage) UpdateRecord(name string, rootID ID) bool {
	off, ok := h.find(name)
	if !ok {
		return false
	}
	valueOff := off + 2 + len(name)
	binary.BigEndian.PutUint32(h.p.Data[valueOff:], uint32(rootID))
	h.p.IsDirty = true
	return true
}

// DeleteRecord removes a record by compacting the remaining bytes over
// it. btree.Manager.DropTree does not call it: a dropped tree's record
// stays in the directory.
func (h *HeaderPage) DeleteRecord(name string) bool {
	off, ok := h.find(name)
	if !ok {
		return false
	}
	recLen := recordHeaderLen + len(name)
	used := h.usedBytes()
	copy(h.p.Data[off:], h.p.Data[off+recLen:used])
	for i := used - recLen; i < used; i++ {
		h.p.Data[i] = 0
	}
	h.p.IsDirty = true
	return true
}

// GetRootID looks up the root page id stored for name.
func (h *HeaderPage) GetRootID(name string) (ID, error) {
	off, ok := h.find(name)
	if !ok {
		return InvalidID, ErrRecordNotFound
	}
	valueOff := off + 2 + len(name)
	return ID(binary.BigEndian.Uint32(h.p.Data[valueOff:])), nil
}

// find returns the byte offset of the record whose name matches, and
// reports whether one was found, scanning linearly the way BusTub's
// HeaderPage does — directories of this size are never large enough to
// justify an index of their own.
func (h *HeaderPage) find(name string) (int, bool) {
	buf := h.p.Data
	off := 0
	for off+2 <= len(buf) {
		nameLen := int(binary.BigEndian.Uint16(buf[off:]))
		if nameLen == 0 {
			break
		}
		recStart := off
		off += 2
		if off+nameLen+4 > len(buf) {
			break
		}
		candidate := string(buf[off : off+nameLen])
		off += nameLen + 4
		if candidate == name {
			return recStart, true
		}
	}
	return 0, false
}

// usedBytes returns the offset just past the last valid record, i.e.
// where the next InsertRecord would start writing.
func (h *HeaderPage) usedBytes() int {
	buf := h.p.Data
	off := 0
	for off+2 <= len(buf) {
		nameLen := int(binary.BigEndian.Uint16(buf[off:]))
		if nameLen == 0 {
			break
		}
		if off+2+nameLen+4 > len(buf) {
			break
		}
		off += 2 + nameLen + 4
	}
	return off
}

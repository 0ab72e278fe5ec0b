// Package document models a fetched artifact shared, without copying,
// across the cache, the moderation call, and the RPC response writer.
package document

import (
	"encoding/base64"
	"sync/atomic"

	"github.com/google/uuid"
)

// Document is an immutable fetched artifact. Once constructed its
// fields are never mutated; a resize produces a new Document rather
// than changing this one in place.
type Document struct {
	ID          uuid.UUID
	URL         string
	ContentType string
	Bytes       []byte
}

// SizeInBytes is the derived size of the payload.
func (d *Document) SizeInBytes() int64 {
	return int64(len(d.Bytes))
}

// ToDataURI renders the document as a data: URI, the wire
// representation used by the Json response shape.
func (d *Document) ToDataURI() string {
	return "data:" + d.ContentType + ";base64," + base64.StdEncoding.EncodeToString(d.Bytes)
}

// Ref is a reference-counted, immutable handle to a Document. The
// cache, an in-flight pipeline call, and the response serializer each
// hold their own Ref and call Release when done; the underlying
// Document is eligible for collection once the last Ref is released.
// Go's garbage collector would reclaim the backing bytes regardless,
// but the explicit refcount models the ownership/lifetime contract
// this type's callers reason about (see SPEC_FULL.md §3 "Ownership").
type Ref struct {
	doc *Document
	n   *atomic.Int32
}

// NewRef wraps doc in a fresh Ref with one outstanding reference.
func NewRef(doc *Document) *Ref {
	n := &atomic.Int32{}
	n.Store(1)
	return &Ref{doc: doc, n: n}
}

// Retain returns a new handle to the same underlying Document,
// incrementing the shared reference count.
func (r *Ref) Retain() *Ref {
	r.n.Add(1)
	return &Ref{doc: r.doc, n: r.n}
}

// Release decrements the reference count. It is safe to call exactly
// once per Ref obtained from NewRef or Retain.
func (r *Ref) Release() {
	r.n.Add(-1)
}

// Document returns the shared, read-only Document. Callers must not
// mutate Bytes.
func (r *Ref) Document() *Document {
	return r.doc
}

// RefCount reports the current number of outstanding holders, chiefly
// for tests and diagnostics.
func (r *Ref) RefCount() int32 {
	return r.n.Load()
}

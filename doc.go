/*
Package neemo implements an embedded document store on top of an ordered
key-value engine (in this case, on top of Bolt).

Documents are field→value maps stored under opaque string keys. Every
(field, value) pair of a live document contributes one entry to a secondary
index, which drives equality and range queries without full scans.

# Technical Details

**Two sub-stores.**
A database directory holds two independent engine instances: `data.db`
(primary key→document mapping, the source of truth) and `index.db`
(derived entries). Every logical mutation touches both under a single
combined critical section.

**Composite index keys.**
An index entry's key is

	esc(field) 0x00 esc(canonicalValue) 0x00 esc(documentKey)

where esc replaces 0x00 with 0x00 0xFF, so the 0x00 terminators are
unambiguous, component order survives concatenation, and distinct
(field, value, document key) triples always produce distinct keys. The
document key suffix makes entries for documents sharing a (field, value)
pair distinct; the entry's value repeats the document key for
self-description.

**Canonical values.**
Scalars are encoded so that byte order matches natural order: a tag byte
fixes the cross-type order (null < false < true < number < string <
structured), numbers use the sign-flipped big-endian IEEE 754 form,
strings use their raw bytes. Arrays and objects get a canonical JSON form
that supports equality lookups only.

**Mutation ordering.**
A mutation writes new index entries, then the document, then retracts
stale entries. A crash can therefore leave extra index entries but never
an index entry pointing at a missing document; opening a database sweeps
such orphans out.

**Document bytes.**
Stored documents are msgpack with sorted map keys, so a document's
serialized form is reproducible byte for byte.
*/
package neemo

/*
Package revdb implements an embedded, revision-tracked document database with
incrementally maintained map/reduce views, following CouchDB semantics.

We implement:

1. Documents: JSON-like maps identified by _id. Every write creates a new
revision "<counter>-<token>", and updating a document requires naming its
current head revision in _rev (optimistic concurrency).

2. A change log mapping every global sequence number to the document revision
written at that point.

3. Views: a map function, optionally paired with a reduce function, that
derive sorted indexes from all documents. Indexes are built lazily on query
and then kept up to date by replaying only the unseen part of the change log.

4. Persistence into a Bolt file, a JSON or msgpack snapshot file, or nowhere
(in-memory databases).

# Technical Details

**Locking.**
A single mutex serializes all operations. Internal methods that expect the
lock to be held are suffixed with _locked.

**Sequences.**
The change log always has exactly Sequence entries. A document record
remembers the sequence of its latest write, so a log entry s for id is stale
whenever Data[id].Sequence != s. Both the indexer and the change feed skip
stale entries.

**Index maintenance.**
An index is keyed by view name and serialized key filter. Catching up with
the log removes every row of each document written in the replayed window,
then merges the freshly emitted rows (sorted by key) into the remaining ones
in a single pass. Rows are ordered by key using CouchDB collation: null,
false, true, numbers, strings (Unicode collation), arrays, objects.

**Persistence.**
Bolt and in-memory databases use buckets (meta, docs, changes, views,
indexes) and only rewrite what changed since the last save. Snapshot files
are rewritten whole, atomically, keeping a .bak copy until the new file is
in place. Indexes are a cache and are dropped whenever they can't be trusted.
*/
package revdb

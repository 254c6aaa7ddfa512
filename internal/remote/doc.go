// Package remote abstracts the remote record store.
//
// Client is the only boundary with the actual backend: implement it once
// per target backend without touching coordinator logic. The MongoDB
// implementation lives in the mongo subpackage; InMemory backs tests and
// local development.
//
// Batch semantics: UploadBatch partitions its input into chunks bounded
// by the provider's per-request limit. Per-item failures inside a chunk
// do not abort the chunk, and a batch that saves fewer records than it
// was given is a partial success, not an error.
package remote

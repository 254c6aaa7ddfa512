// Package syncable defines the entity contract for bidirectional sync.
//
// A syncable entity is a local domain object that can round-trip to and
// from a remote record representation. Every entity embeds Meta, the sync
// metadata block (identity, pending flag, tombstone), and implements
// Entity so the coordinator can orchestrate upload and download without
// knowing the concrete type.
//
// Two entity kinds exist: Layer (a grouping of annotations) and
// Annotation (a positioned note inside a layer). Each has an adapter to
// its remote record schema via ToRecord/ApplyRecord.
package syncable

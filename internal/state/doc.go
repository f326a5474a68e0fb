// Package state holds the per-device key/value models used for telemetry and
// attributes.
//
// A Model remembers the last value written for each key and marks a key
// dirty only when the stored value actually changes. The controller
// collects dirty keys on its send interval with TakeDirty, and resends the
// full attribute set after a reconnect with Snapshot.
//
// Diff is the whole-document form of the same check: given a new document
// it reports which top-level keys differ from the cache and updates the
// cache with them.
package state

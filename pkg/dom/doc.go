// Package dom holds the materialized render tree and turns its mutations
// into the command stream consumed by the host display layer.
//
// The tree has two node kinds. Elements are mirrored on the host.
// Fragments are logical groupings used for conditional and repeated
// content; the host never sees them, so every index in a command is a
// host index: the position among the element children of the nearest
// element ancestor, with fragments flattened.
//
// Commands are buffered on the Document and handed to its Sink in one
// batch by FinishCreate or FinishUpdate.
package dom

// Package preflight checks that a corpus can be indexed and searched:
// configuration, corpus and data directories, disk space, descriptor
// limits, the embedder and the index files.
//
// Required checks that fail make indexing impossible. Everything else is
// reported as a warning, since search degrades to lexical-only rather
// than failing.
package preflight

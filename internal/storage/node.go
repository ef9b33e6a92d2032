// Package storage is the client for the Data Lab remote-file store
// (VOSpace). It resolves wildcarded vos:// paths against remote listings
// and applies single- or multi-file transfer, move, copy, remove, and
// link operations with per-file outcome tracking.
package storage

import (
	"path"
	"strings"
)

// Scheme is the URI prefix for remote storage paths.
const Scheme = "vos://"

// Kind classifies a remote node.
type Kind string

const (
	KindContainer Kind = "container"
	KindData      Kind = "data"
	KindLink      Kind = "link"
)

// Node is one addressable entity in the storage hierarchy, as reported
// by the stat endpoint.
type Node struct {
	Path   string `json:"name"`
	Kind   Kind   `json:"type"`
	Size   int64  `json:"size"`
	Target string `json:"target,omitempty"` // links only
}

// Name returns the node's basename, the component pattern matching
// operates on.
func (n Node) Name() string {
	return path.Base(strings.TrimSuffix(strings.TrimPrefix(n.Path, Scheme), "/"))
}

// HasMeta reports whether s contains any of the three shell wildcard
// characters the client expands: '*', '?', '['.
func HasMeta(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// WithScheme prepends the vos:// prefix when the path has no scheme and
// collapses any accidental triple slash produced by concatenation.
func WithScheme(p string) string {
	if !strings.Contains(p, "://") {
		p = Scheme + p
	}

	return CollapseSlashes(p)
}

// CollapseSlashes removes the triple slashes that naive concatenation of
// "vos://dir/" + "/name" style fragments produces.
func CollapseSlashes(p string) string {
	for strings.Contains(p, "///") {
		p = strings.ReplaceAll(p, "///", "//")
	}

	return p
}

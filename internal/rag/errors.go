package rag

import "errors"

// Processing failures. Each is joined with its cause, so errors.Is works on
// both the kind and the underlying error.
var (
	ErrFetch         = errors.New("fetch failed")
	ErrEmptyDocument = errors.New("document has no text")
	ErrSplit         = errors.New("split failed")
	ErrEmbedding     = errors.New("embedding failed")
	ErrIndexBuild    = errors.New("index build failed")
)

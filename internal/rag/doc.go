// Package rag provides the retrieval building blocks used by the context
// retriever: corpus chunking, embedders and an in-memory vector index.
//
// This package enables:
//   - Splitting corpus files into page and section aware word windows
//   - Embedding chunks with a local feature-hashing embedder or a remote model
//   - Cosine similarity search over an immutable per-persona index
//
// Indices are built once per persona and never mutated, so concurrent
// searches need no locking.
package rag

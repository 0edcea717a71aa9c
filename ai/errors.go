package ai

import "errors"

// ErrEmbeddingDimension is returned when an embedding service answers with
// vectors whose dimension differs from the ones it returned before.
var ErrEmbeddingDimension = errors.New("embedding dimension changed")

// Package identity defines enrolled individuals and their face embeddings.
package identity

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// EmbeddingSize is the length of a face embedding vector. The embedder
// network produces 128-dimensional descriptors.
const EmbeddingSize = 128

// Embedding is a fixed-length face descriptor compared by Euclidean distance.
type Embedding []float64

// Distance returns the Euclidean distance between two embeddings.
func (e Embedding) Distance(other Embedding) (float64, error) {
	if len(e) != len(other) {
		return 0, fmt.Errorf("embedding length mismatch: %d vs %d", len(e), len(other))
	}
	return floats.Distance(e, other, 2), nil
}

// Average returns the element-wise mean of a set of equal-length embeddings.
// Used to combine jittered computations of the same face crop.
func Average(embeddings []Embedding) Embedding {
	if len(embeddings) == 0 {
		return nil
	}
	out := make(Embedding, len(embeddings[0]))
	for _, e := range embeddings {
		floats.Add(out, e)
	}
	floats.Scale(1/float64(len(embeddings)), out)
	return out
}

// Identity is one enrolled individual. At most one embedding is stored per
// identity; re-enrollment overwrites it.
type Identity struct {
	ID         string    `json:"id" db:"id"`
	Code       string    `json:"code" db:"code"`
	Name       string    `json:"name" db:"name"`
	Embedding  Embedding `json:"-"`
	EnrolledAt time.Time `json:"enrolled_at" db:"enrolled_at"`
}

// Snapshot is a read-only list of enrolled identities handed to the resolver.
type Snapshot []Identity

// WithEmbeddings returns only the identities that have an embedding stored.
func (s Snapshot) WithEmbeddings() Snapshot {
	var out Snapshot
	for _, id := range s {
		if len(id.Embedding) > 0 {
			out = append(out, id)
		}
	}
	return out
}

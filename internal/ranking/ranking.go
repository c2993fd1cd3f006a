// Package ranking selects the articles closest to a topic vector.
package ranking

import (
	"math"
	"sort"
	"time"
)

// Candidate is one article vector considered for ranking.
type Candidate struct {
	ID          string
	Vector      []float64
	PublishedAt time.Time
}

// Scored is a ranked candidate with its cosine similarity.
type Scored struct {
	ID         string
	Similarity float64
}

// Rank orders candidates by descending cosine similarity to topic and keeps topk.
// Candidates whose dimension differs from the topic, or whose norm is zero, are skipped.
func Rank(topic []float64, candidates []Candidate, topk int) []Scored {
	if topk <= 0 || len(topic) == 0 || norm(topic) == 0 {
		return nil
	}

	type entry struct {
		Scored
		published time.Time
	}
	entries := make([]entry, 0, len(candidates))
	for _, c := range candidates {
		sim, ok := Cosine(topic, c.Vector)
		if !ok || math.IsNaN(sim) {
			continue
		}
		entries = append(entries, entry{Scored: Scored{ID: c.ID, Similarity: sim}, published: c.PublishedAt})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Similarity != b.Similarity {
			return a.Similarity > b.Similarity
		}
		if !a.published.Equal(b.published) {
			return a.published.After(b.published)
		}
		return a.ID < b.ID
	})

	if len(entries) > topk {
		entries = entries[:topk]
	}
	out := make([]Scored, len(entries))
	for i, e := range entries {
		out[i] = e.Scored
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or false when undefined.
func Cosine(a, b []float64) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot(a, b) / (na * nb), true
}

func dot(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 {
	return math.Sqrt(dot(v, v))
}

package db

import (
	"math"
)

/*
NormalizeVector scales v to unit length in place

A zero vector is left unchanged.
*/
func NormalizeVector(v []float64) {
	norm := VectorMagnitude(v)
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

/*
CosineSimilarity calculates the cosine similarity between two vectors

Returns:
float64 - A value between -1 and 1, where 1 means identical direction,
0 means orthogonal, and -1 means opposite directions.

Vectors of different length, or with zero magnitude, score exactly 0.
*/
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Correct for floating point precision issues
	if similarity > 1.0 {
		similarity = 1.0
	} else if similarity < -1.0 {
		similarity = -1.0
	}

	return similarity
}

/*
DotProduct computes the dot product of two vectors

Returns 0 when the lengths differ.
*/
func DotProduct(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

/*
VectorMagnitude computes the Euclidean length of a vector
*/
func VectorMagnitude(v []float64) float64 {
	var sum float64
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}

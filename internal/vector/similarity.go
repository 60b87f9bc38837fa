package vector

import (
	"math"

	"github.com/hyperjump/helpdesk/pkg/utils"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i] * b[i])
	}
	return dot
}

// CosineSimilarity returns the cosine of the angle between a and b; 0 when either is zero.
func CosineSimilarity(a, b []float32) float64 {
	na, nb := utils.L2Norm(a), utils.L2Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return InnerProduct(a, b) / (na * nb)
}

// EuclideanDistance returns the L2 distance between a and b.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Score ranks b against query a under metric d; higher is always closer.
// Euclid scores are negated distances.
func Score(d Distance, a, b []float32) float64 {
	switch d {
	case DistanceDot:
		return InnerProduct(a, b)
	case DistanceEuclid:
		return -EuclideanDistance(a, b)
	default:
		return CosineSimilarity(a, b)
	}
}

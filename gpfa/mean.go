package gpfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ZeroMean is the prior mean of a GPFA model: zero for every feature at
// every time point.
type ZeroMean struct {
	nFeatures int
}

// NewZeroMean creates a zero mean over nFeatures outputs.
func NewZeroMean(nFeatures int) (*ZeroMean, error) {
	if nFeatures <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive, got %d", ErrShapeMismatch, nFeatures)
	}
	return &ZeroMean{nFeatures: nFeatures}, nil
}

// Evaluate returns a zero vector of length len(x)·nFeatures.
func (m *ZeroMean) Evaluate(x []float64) (*mat.VecDense, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: empty time points", ErrShapeMismatch)
	}
	return mat.NewVecDense(len(x)*m.nFeatures, nil), nil
}

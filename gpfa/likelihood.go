package gpfa

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Likelihood maps the joint covariance of the latent outputs to the
// covariance of the observations.
type Likelihood interface {
	Marginal(cov *mat.Dense) (*mat.SymDense, error)
}

var _ Likelihood = (*GaussianLikelihood)(nil)

// GaussianLikelihood adds homoscedastic Gaussian noise to every output.
// The noise variance is kept positive through Softplus.
type GaussianLikelihood struct {
	rawNoise float64
}

// NewGaussianLikelihood creates a likelihood with the given positive noise
// variance.
func NewGaussianLikelihood(noise float64) (*GaussianLikelihood, error) {
	l := &GaussianLikelihood{}
	if err := l.SetNoise(noise); err != nil {
		return nil, err
	}
	return l, nil
}

// Noise returns the noise variance.
func (l *GaussianLikelihood) Noise() float64 {
	return Softplus(l.rawNoise)
}

// SetNoise overwrites the noise variance. It must be positive and finite.
func (l *GaussianLikelihood) SetNoise(noise float64) error {
	raw, err := InverseSoftplus(noise)
	if err != nil {
		return fmt.Errorf("likelihood noise: %w", err)
	}
	l.rawNoise = raw
	return nil
}

// Marginal returns the symmetrized cov plus noise on the diagonal.
func (l *GaussianLikelihood) Marginal(cov *mat.Dense) (*mat.SymDense, error) {
	r, c := cov.Dims()
	if r != c {
		return nil, fmt.Errorf("%w: covariance is %dx%d", ErrShapeMismatch, r, c)
	}
	noise := l.Noise()
	sym := mat.NewSymDense(r, nil)
	for i := 0; i < r; i++ {
		sym.SetSym(i, i, cov.At(i, i)+noise)
		for j := i + 1; j < r; j++ {
			sym.SetSym(i, j, 0.5*(cov.At(i, j)+cov.At(j, i)))
		}
	}
	return sym, nil
}

// Package synth generates synthetic GPFA data: a known latent signal, a
// random loading vector and noisy observations of every feature.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Data is one synthetic data set.
type Data struct {
	T      []float64  // time points 0..nObs-1
	Latent []float64  // latent signal at T
	Lambda *mat.Dense // loading matrix (nFeatures x 1), entries in [0, 1)
	Exact  *mat.Dense // noise-free observations (nObs x nFeatures)
	X      *mat.Dense // Exact plus Gaussian noise

	rng *rand.Rand
}

// Option configures Generate.
type Option func(*config)

type config struct {
	latentFunc func(float64) float64
	noiseStd   float64
	seed       uint64
}

// WithLatentFunc sets the function used to produce the latent signal.
// The default is math.Sin.
func WithLatentFunc(f func(float64) float64) Option {
	return func(c *config) {
		c.latentFunc = f
	}
}

// WithNoiseStd sets the standard deviation of the observation noise.
// The default is 0.2.
func WithNoiseStd(std float64) Option {
	return func(c *config) {
		c.noiseStd = std
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed uint64) Option {
	return func(c *config) {
		c.seed = seed
	}
}

// Generate creates a data set with nFeatures features observed at nObs
// integer time points.
func Generate(nFeatures, nObs int, options ...Option) (*Data, error) {
	if nFeatures <= 0 || nObs <= 0 {
		return nil, fmt.Errorf("synth: feature and observation counts must be positive, got %d and %d", nFeatures, nObs)
	}
	cfg := config{
		latentFunc: math.Sin,
		noiseStd:   0.2,
		seed:       42,
	}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.latentFunc == nil {
		return nil, errors.New("synth: latent function is nil")
	}
	if cfg.noiseStd < 0 || math.IsNaN(cfg.noiseStd) {
		return nil, fmt.Errorf("synth: noise std must be non-negative, got %g", cfg.noiseStd)
	}

	src := rand.NewPCG(cfg.seed, cfg.seed^0x9e3779b97f4a7c15)
	d := &Data{
		T:      make([]float64, nObs),
		Latent: make([]float64, nObs),
		Lambda: mat.NewDense(nFeatures, 1, nil),
		Exact:  mat.NewDense(nObs, nFeatures, nil),
		X:      mat.NewDense(nObs, nFeatures, nil),
		rng:    rand.New(src),
	}
	for i := range d.T {
		d.T[i] = float64(i)
		d.Latent[i] = cfg.latentFunc(d.T[i])
	}

	loading := distuv.Uniform{Min: 0, Max: 1, Src: src}
	for f := 0; f < nFeatures; f++ {
		d.Lambda.Set(f, 0, loading.Rand())
	}

	// Exact = (Λ · latentᵀ)ᵀ
	latent := mat.NewDense(1, nObs, d.Latent)
	d.Exact.Mul(latent.T(), d.Lambda.T())

	noise := distuv.Normal{Mu: 0, Sigma: cfg.noiseStd, Src: src}
	for i := 0; i < nObs; i++ {
		for f := 0; f < nFeatures; f++ {
			v := d.Exact.At(i, f)
			if cfg.noiseStd > 0 {
				v += noise.Rand()
			}
			d.X.Set(i, f, v)
		}
	}
	return d, nil
}

// Mask returns a copy of X with roughly fraction of its entries set to NaN.
func (d *Data) Mask(fraction float64) *mat.Dense {
	out := mat.DenseCopyOf(d.X)
	r, c := out.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if d.rng.Float64() < fraction {
				out.Set(i, j, math.NaN())
			}
		}
	}
	return out
}

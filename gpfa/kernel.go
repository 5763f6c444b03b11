package gpfa

import (
	"fmt"
	"math"

	"github.com/n0madic/go-gpfa/kernels"
	"gonum.org/v1/gonum/mat"
)

// Kernel is the GPFA covariance over time points. Each input time expands to
// NumFeatures correlated outputs, all driven by a single latent Gaussian
// process through the loading matrix Λ, plus independent per-feature noise ψ.
type Kernel struct {
	nFeatures  int
	latentDims int
	workers    int

	lambda *mat.Dense     // loading matrix (nFeatures x latentDims)
	psi    *PositiveDiag  // noise variances (nFeatures)
	latent kernels.Kernel // owned by the caller
}

// Option configures a Kernel or a Model.
type Option func(*config)

type config struct {
	latentDims int
	lambda     []float64
	psi        []float64
	workers    int
	jitter     float64
}

func defaultConfig() config {
	return config{
		latentDims: 1,
		jitter:     1e-8,
	}
}

// WithLatentDims sets the number of latent dimensions. Only 1 is supported.
func WithLatentDims(d int) Option {
	return func(c *config) {
		c.latentDims = d
	}
}

// WithLoading sets the initial loading vector Λ (one entry per feature).
// The default is all ones.
func WithLoading(lambda []float64) Option {
	return func(c *config) {
		c.lambda = append([]float64(nil), lambda...)
	}
}

// WithPsi sets the initial noise variances ψ. The default is all ones.
func WithPsi(psi []float64) Option {
	return func(c *config) {
		c.psi = append([]float64(nil), psi...)
	}
}

// WithWorkers builds the covariance block by block on n goroutines instead
// of with a single Kronecker product.
func WithWorkers(n int) Option {
	return func(c *config) {
		c.workers = n
	}
}

// WithJitter sets the relative diagonal jitter tried when a Cholesky
// factorization fails during inference. Zero disables the retry.
func WithJitter(jitter float64) Option {
	return func(c *config) {
		c.jitter = jitter
	}
}

// NewKernel creates a GPFA kernel over nFeatures outputs driven by latent.
func NewKernel(nFeatures int, latent kernels.Kernel, options ...Option) (*Kernel, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	return newKernel(nFeatures, latent, cfg)
}

func newKernel(nFeatures int, latent kernels.Kernel, cfg config) (*Kernel, error) {
	if cfg.latentDims != 1 {
		return nil, fmt.Errorf("%w: latent dims must be 1, got %d", ErrUnsupportedConfiguration, cfg.latentDims)
	}
	if nFeatures <= 0 {
		return nil, fmt.Errorf("%w: feature count must be positive, got %d", ErrShapeMismatch, nFeatures)
	}
	if latent == nil {
		return nil, fmt.Errorf("%w: latent kernel is nil", ErrUnsupportedConfiguration)
	}

	psi, err := NewPositiveDiag(nFeatures)
	if err != nil {
		return nil, err
	}
	k := &Kernel{
		nFeatures:  nFeatures,
		latentDims: cfg.latentDims,
		workers:    cfg.workers,
		lambda:     mat.NewDense(nFeatures, cfg.latentDims, nil),
		psi:        psi,
		latent:     latent,
	}
	for i := 0; i < nFeatures; i++ {
		k.lambda.Set(i, 0, 1)
	}

	if cfg.lambda != nil {
		if err := k.SetLoading(cfg.lambda); err != nil {
			return nil, err
		}
	}
	if cfg.psi != nil {
		if err := k.SetPsi(cfg.psi); err != nil {
			return nil, err
		}
	}
	return k, nil
}

// NumFeatures returns the number of observed features per time point.
func (k *Kernel) NumFeatures() int { return k.nFeatures }

// LatentDims returns the number of latent dimensions, always 1.
func (k *Kernel) LatentDims() int { return k.latentDims }

// Latent returns the latent time kernel.
func (k *Kernel) Latent() kernels.Kernel { return k.latent }

// Loading returns a copy of Λ.
func (k *Kernel) Loading() *mat.Dense {
	return mat.DenseCopyOf(k.lambda)
}

// SetLoading overwrites Λ. Entries must be finite.
func (k *Kernel) SetLoading(lambda []float64) error {
	if len(lambda) != k.nFeatures*k.latentDims {
		return fmt.Errorf("%w: loading has %d entries, want %d", ErrShapeMismatch, len(lambda), k.nFeatures*k.latentDims)
	}
	for i, v := range lambda {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: loading entry %d is not finite", ErrInvalidParameter, i)
		}
	}
	copy(k.lambda.RawMatrix().Data, lambda)
	return nil
}

// Psi returns a copy of the noise variances ψ.
func (k *Kernel) Psi() *mat.VecDense {
	return k.psi.Get()
}

// SetPsi overwrites ψ. Every entry must be positive and finite.
func (k *Kernel) SetPsi(psi []float64) error {
	return k.psi.Set(psi)
}

// EvalOption selects an evaluation mode for Kernel.Evaluate.
type EvalOption func(*evalMode)

type evalMode struct {
	diag           bool
	lastDimIsBatch bool
}

// Diag requests only the diagonal of the covariance. Not supported.
func Diag() EvalOption {
	return func(m *evalMode) { m.diag = true }
}

// LastDimIsBatch requests batched evaluation over the last input dimension.
// Not supported.
func LastDimIsBatch() EvalOption {
	return func(m *evalMode) { m.lastDimIsBatch = true }
}

// Evaluate returns the joint covariance of all features at the time points.
// t1 and t2 must describe the same number of points; the result is
// (NumFeatures·len(t1)) square. The returned matrix is owned by the caller.
func (k *Kernel) Evaluate(t1, t2 []float64, options ...EvalOption) (*mat.Dense, error) {
	var mode evalMode
	for _, opt := range options {
		opt(&mode)
	}
	if mode.diag {
		return nil, fmt.Errorf("%w: diagonal-only evaluation", ErrUnsupportedConfiguration)
	}
	if mode.lastDimIsBatch {
		return nil, fmt.Errorf("%w: batched last dimension", ErrUnsupportedConfiguration)
	}
	if len(t1) == 0 || len(t2) == 0 {
		return nil, fmt.Errorf("%w: empty time points", ErrShapeMismatch)
	}
	if len(t1) != len(t2) {
		return nil, fmt.Errorf("%w: %d and %d time points, use Cross for rectangular blocks", ErrShapeMismatch, len(t1), len(t2))
	}

	nObs := len(t1)
	kT := k.latent.Evaluate(t1, t2)
	psi := k.psi.Get()
	if k.workers > 1 {
		return BuildCovarianceBlocks(k.lambda, kT, psi, k.nFeatures, nObs, k.workers)
	}
	return BuildCovariance(k.lambda, kT, psi, k.nFeatures, nObs)
}

// Cross returns the noise-free covariance between the features at t1 and
// the features at t2, a (NumFeatures·len(t1)) x (NumFeatures·len(t2)) matrix.
func (k *Kernel) Cross(t1, t2 []float64) (*mat.Dense, error) {
	if len(t1) == 0 || len(t2) == 0 {
		return nil, fmt.Errorf("%w: empty time points", ErrShapeMismatch)
	}
	kT := k.latent.Evaluate(t1, t2)
	if kT == nil {
		return nil, fmt.Errorf("%w: latent kernel returned nil", ErrShapeMismatch)
	}
	if r, c := kT.Dims(); r != len(t1) || c != len(t2) {
		return nil, fmt.Errorf("%w: latent kernel matrix is %dx%d, want %dx%d", ErrShapeMismatch, r, c, len(t1), len(t2))
	}
	return CrossCovariance(k.lambda, kT, k.nFeatures)
}

// NumOutputsPerInput reports how many correlated outputs each time point
// expands to, independent of the query points.
func (k *Kernel) NumOutputsPerInput(t1, t2 []float64) int {
	return k.nFeatures
}

package gpfa

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/n0madic/go-gpfa/kernels"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

// Model is an exact GPFA Gaussian process: a ZeroMean, a GPFA Kernel and a
// Likelihood, optionally conditioned on training data.
//
// Outputs are flattened observation-major: entry i·NumFeatures()+f is
// feature f at time x[i], matching the block layout of the covariance.
type Model struct {
	nFeatures int
	jitter    float64

	trainX []float64
	trainY *mat.VecDense // flattened training targets, nil without data

	mean       *ZeroMean
	kernel     *Kernel
	likelihood Likelihood
}

// NewModel builds a model over nFeatures outputs. trainY holds one row per
// entry of trainX and one column per feature; both may be nil for a
// prior-only model.
func NewModel(trainX []float64, trainY *mat.Dense, likelihood Likelihood, nFeatures int, latent kernels.Kernel, options ...Option) (*Model, error) {
	cfg := defaultConfig()
	for _, opt := range options {
		opt(&cfg)
	}
	if likelihood == nil {
		return nil, fmt.Errorf("%w: likelihood is nil", ErrUnsupportedConfiguration)
	}
	if cfg.jitter < 0 || math.IsNaN(cfg.jitter) {
		return nil, fmt.Errorf("%w: jitter must be non-negative, got %g", ErrInvalidParameter, cfg.jitter)
	}
	kernel, err := newKernel(nFeatures, latent, cfg)
	if err != nil {
		return nil, err
	}
	mean, err := NewZeroMean(nFeatures)
	if err != nil {
		return nil, err
	}

	m := &Model{
		nFeatures:  nFeatures,
		jitter:     cfg.jitter,
		mean:       mean,
		kernel:     kernel,
		likelihood: likelihood,
	}
	if err := m.SetTrainData(trainX, trainY); err != nil {
		return nil, err
	}
	return m, nil
}

// SetTrainData replaces the conditioning data. Passing nil for both clears it.
func (m *Model) SetTrainData(x []float64, y *mat.Dense) error {
	if len(x) == 0 && y == nil {
		m.trainX, m.trainY = nil, nil
		return nil
	}
	if y == nil {
		return fmt.Errorf("%w: training targets are nil", ErrShapeMismatch)
	}
	r, c := y.Dims()
	if r != len(x) || c != m.nFeatures {
		return fmt.Errorf("%w: training targets are %dx%d, want %dx%d", ErrShapeMismatch, r, c, len(x), m.nFeatures)
	}
	flat := flatten(y)
	if floats.HasNaN(flat) {
		return fmt.Errorf("%w: training targets contain NaN", ErrInvalidParameter)
	}
	m.trainX = append([]float64(nil), x...)
	m.trainY = mat.NewVecDense(len(flat), flat)
	return nil
}

// NumFeatures returns the number of observed features per time point.
func (m *Model) NumFeatures() int { return m.nFeatures }

// Kernel returns the model's GPFA kernel; parameter updates through it are
// seen by the model.
func (m *Model) Kernel() *Kernel { return m.kernel }

// Likelihood returns the observation likelihood.
func (m *Model) Likelihood() Likelihood { return m.likelihood }

// Evaluate returns the prior mean and joint covariance of the outputs at x.
func (m *Model) Evaluate(x []float64) (*mat.VecDense, *mat.Dense, error) {
	mean, err := m.mean.Evaluate(x)
	if err != nil {
		return nil, nil, err
	}
	cov, err := m.kernel.Evaluate(x, x)
	if err != nil {
		return nil, nil, err
	}
	return mean, cov, nil
}

// Distribution returns the prior distribution of the observations at x,
// including likelihood noise. src drives Rand and may be nil when only
// densities are needed.
func (m *Model) Distribution(x []float64, src rand.Source) (*distmv.Normal, error) {
	mean, chol, err := m.observed(x)
	if err != nil {
		return nil, err
	}
	return distmv.NewNormalChol(mean.RawVector().Data, chol, src), nil
}

// LogMarginalLikelihood returns log p(y | x) of the training data under the
// current parameters, summed over all outputs.
func (m *Model) LogMarginalLikelihood() (float64, error) {
	if m.trainY == nil {
		return 0, fmt.Errorf("%w: model has no training data", ErrShapeMismatch)
	}
	dist, err := m.Distribution(m.trainX, nil)
	if err != nil {
		return 0, err
	}
	return dist.LogProb(m.trainY.RawVector().Data), nil
}

// Predict returns the posterior mean and covariance of the outputs at x
// given the training data. Without training data it returns the prior.
func (m *Model) Predict(x []float64) (*mat.VecDense, *mat.SymDense, error) {
	prior, err := m.kernel.Evaluate(x, x)
	if err != nil {
		return nil, nil, err
	}
	if m.trainY == nil {
		mean, err := m.mean.Evaluate(x)
		if err != nil {
			return nil, nil, err
		}
		return mean, symmetrize(prior), nil
	}

	_, chol, err := m.observed(m.trainX)
	if err != nil {
		return nil, nil, err
	}
	cross, err := m.kernel.Cross(m.trainX, x)
	if err != nil {
		return nil, nil, err
	}

	var alpha mat.VecDense
	if err := solveVec(chol, &alpha, m.trainY); err != nil {
		return nil, nil, err
	}
	mean := mat.NewVecDense(len(x)*m.nFeatures, nil)
	mean.MulVec(cross.T(), &alpha)

	var v mat.Dense
	if err := solve(chol, &v, cross); err != nil {
		return nil, nil, err
	}
	var reduction mat.Dense
	reduction.Mul(cross.T(), &v)
	prior.Sub(prior, &reduction)
	return mean, symmetrize(prior), nil
}

// Impute fills the NaN entries of y, a len(x) x NumFeatures matrix, with
// their conditional mean given the observed entries. The second result holds
// the conditional variance of each imputed entry and zero elsewhere.
func (m *Model) Impute(x []float64, y *mat.Dense) (*mat.Dense, *mat.Dense, error) {
	if y == nil {
		return nil, nil, fmt.Errorf("%w: observations are nil", ErrShapeMismatch)
	}
	if r, c := y.Dims(); r != len(x) || c != m.nFeatures {
		return nil, nil, fmt.Errorf("%w: observations are %dx%d, want %dx%d", ErrShapeMismatch, r, c, len(x), m.nFeatures)
	}
	_, cov, err := m.Evaluate(x)
	if err != nil {
		return nil, nil, err
	}
	sigma, err := m.likelihood.Marginal(cov)
	if err != nil {
		return nil, nil, err
	}

	flat := flatten(y)
	var observed, missing []int
	for i, v := range flat {
		if math.IsNaN(v) {
			missing = append(missing, i)
		} else {
			observed = append(observed, i)
		}
	}

	filled := mat.DenseCopyOf(y)
	variance := mat.NewDense(len(x), m.nFeatures, nil)
	if len(missing) == 0 {
		return filled, variance, nil
	}

	condMean := make([]float64, len(missing))
	condVar := make([]float64, len(missing))
	for a, i := range missing {
		condVar[a] = sigma.At(i, i)
	}

	if len(observed) > 0 {
		sOO := subSym(sigma, observed)
		chol, err := m.factorize(sOO)
		if err != nil {
			return nil, nil, err
		}
		sOM := mat.NewDense(len(observed), len(missing), nil)
		for a, i := range observed {
			for b, j := range missing {
				sOM.Set(a, b, sigma.At(i, j))
			}
		}
		yO := mat.NewVecDense(len(observed), nil)
		for a, i := range observed {
			yO.SetVec(a, flat[i])
		}

		var alpha mat.VecDense
		if err := solveVec(chol, &alpha, yO); err != nil {
			return nil, nil, err
		}
		mu := mat.NewVecDense(len(missing), condMean)
		mu.MulVec(sOM.T(), &alpha)

		var v mat.Dense
		if err := solve(chol, &v, sOM); err != nil {
			return nil, nil, err
		}
		for b := range missing {
			condVar[b] -= mat.Dot(sOM.ColView(b), v.ColView(b))
			condVar[b] = math.Max(condVar[b], 0)
		}
	}

	for a, i := range missing {
		r, c := i/m.nFeatures, i%m.nFeatures
		filled.Set(r, c, condMean[a])
		variance.Set(r, c, condVar[a])
	}
	return filled, variance, nil
}

// observed returns the prior mean and the Cholesky factor of the
// observation covariance at x.
func (m *Model) observed(x []float64) (*mat.VecDense, *mat.Cholesky, error) {
	mean, cov, err := m.Evaluate(x)
	if err != nil {
		return nil, nil, err
	}
	sigma, err := m.likelihood.Marginal(cov)
	if err != nil {
		return nil, nil, err
	}
	chol, err := m.factorize(sigma)
	if err != nil {
		return nil, nil, err
	}
	return mean, chol, nil
}

// factorize computes the Cholesky factor of sigma, retrying once with
// diagonal jitter proportional to the mean variance.
func (m *Model) factorize(sigma *mat.SymDense) (*mat.Cholesky, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(sigma); ok {
		return &chol, nil
	}
	if m.jitter == 0 {
		return nil, ErrNotPositiveDefinite
	}

	n := sigma.SymmetricDim()
	trace := 0.0
	for i := 0; i < n; i++ {
		trace += sigma.At(i, i)
	}
	eps := m.jitter * trace / float64(n)
	jittered := mat.NewSymDense(n, nil)
	jittered.CopySym(sigma)
	for i := 0; i < n; i++ {
		jittered.SetSym(i, i, jittered.At(i, i)+eps)
	}
	if ok := chol.Factorize(jittered); ok {
		return &chol, nil
	}
	return nil, fmt.Errorf("%w: factorization failed even with jitter %g", ErrNotPositiveDefinite, eps)
}

// solveVec and solve accept ill-conditioned results; mat.Condition is a
// warning, not a failure.
func solveVec(chol *mat.Cholesky, dst *mat.VecDense, b mat.Vector) error {
	err := chol.SolveVecTo(dst, b)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return err
	}
	return nil
}

func solve(chol *mat.Cholesky, dst *mat.Dense, b mat.Matrix) error {
	err := chol.SolveTo(dst, b)
	var cond mat.Condition
	if err != nil && !errors.As(err, &cond) {
		return err
	}
	return nil
}

func flatten(y *mat.Dense) []float64 {
	r, c := y.Dims()
	out := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		out = append(out, y.RawRowView(i)...)
	}
	return out
}

func symmetrize(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sym.SetSym(i, j, 0.5*(d.At(i, j)+d.At(j, i)))
		}
	}
	return sym
}

func subSym(s *mat.SymDense, idx []int) *mat.SymDense {
	out := mat.NewSymDense(len(idx), nil)
	for a, i := range idx {
		for b := a; b < len(idx); b++ {
			out.SetSym(a, b, s.At(i, idx[b]))
		}
	}
	return out
}

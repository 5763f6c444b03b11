package gpfa

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/n0madic/go-gpfa/synth"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func newTestModel(t *testing.T, x []float64, y *mat.Dense, nFeatures int, options ...Option) *Model {
	t.Helper()
	lik, err := NewGaussianLikelihood(0.01)
	require.NoError(t, err)
	m, err := NewModel(x, y, lik, nFeatures, testLatent(t), options...)
	require.NoError(t, err)
	return m
}

func TestNewModelValidation(t *testing.T) {
	lik, err := NewGaussianLikelihood(0.1)
	require.NoError(t, err)
	x := []float64{0, 1, 2}

	_, err = NewModel(x, mat.NewDense(3, 2, nil), nil, 2, testLatent(t))
	require.ErrorIs(t, err, ErrUnsupportedConfiguration)

	_, err = NewModel(x, mat.NewDense(3, 2, nil), lik, 2, testLatent(t), WithLatentDims(2))
	require.ErrorIs(t, err, ErrUnsupportedConfiguration)

	_, err = NewModel(x, mat.NewDense(3, 3, nil), lik, 2, testLatent(t))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewModel(x, nil, lik, 2, testLatent(t))
	require.ErrorIs(t, err, ErrShapeMismatch)

	y := mat.NewDense(3, 2, nil)
	y.Set(1, 1, math.NaN())
	_, err = NewModel(x, y, lik, 2, testLatent(t))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewModel(x, mat.NewDense(3, 2, nil), lik, 2, testLatent(t), WithJitter(-1))
	require.ErrorIs(t, err, ErrInvalidParameter)

	m, err := NewModel(nil, nil, lik, 2, testLatent(t))
	require.NoError(t, err)
	_, err = m.LogMarginalLikelihood()
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestModelEvaluate(t *testing.T) {
	m := newTestModel(t, nil, nil, 3, WithLoading([]float64{1, 0.5, -2}))
	x := []float64{0, 0.5, 1, 4}

	mean, cov, err := m.Evaluate(x)
	require.NoError(t, err)
	require.Equal(t, 12, mean.Len())
	require.Equal(t, 0.0, mat.Norm(mean, 2))

	want, err := m.Kernel().Evaluate(x, x)
	require.NoError(t, err)
	require.True(t, mat.Equal(want, cov))

	_, _, err = m.Evaluate(nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestZeroMean(t *testing.T) {
	zm, err := NewZeroMean(4)
	require.NoError(t, err)
	v, err := zm.Evaluate([]float64{1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, 12, v.Len())
	for i := 0; i < v.Len(); i++ {
		require.Equal(t, 0.0, v.AtVec(i))
	}

	_, err = zm.Evaluate(nil)
	require.ErrorIs(t, err, ErrShapeMismatch)
	_, err = NewZeroMean(0)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestGaussianLikelihood(t *testing.T) {
	lik, err := NewGaussianLikelihood(0.3)
	require.NoError(t, err)
	require.InDelta(t, 0.3, lik.Noise(), 1e-12)

	cov := mat.NewDense(2, 2, []float64{1, 0.5, 0.5, 2})
	sym, err := lik.Marginal(cov)
	require.NoError(t, err)
	require.InDelta(t, 1.3, sym.At(0, 0), 1e-12)
	require.InDelta(t, 0.5, sym.At(0, 1), 1e-12)
	require.InDelta(t, 2.3, sym.At(1, 1), 1e-12)

	_, err = lik.Marginal(mat.NewDense(2, 3, nil))
	require.ErrorIs(t, err, ErrShapeMismatch)

	_, err = NewGaussianLikelihood(0)
	require.ErrorIs(t, err, ErrInvalidParameter)
	require.ErrorIs(t, lik.SetNoise(-1), ErrInvalidParameter)
	require.InDelta(t, 0.3, lik.Noise(), 1e-12)
}

func TestLogMarginalLikelihood(t *testing.T) {
	data, err := synth.Generate(3, 8, synth.WithSeed(7))
	require.NoError(t, err)
	m := newTestModel(t, data.T, data.X, 3)

	got, err := m.LogMarginalLikelihood()
	require.NoError(t, err)

	_, cov, err := m.Evaluate(data.T)
	require.NoError(t, err)
	sigma, err := m.Likelihood().Marginal(cov)
	require.NoError(t, err)

	var chol mat.Cholesky
	require.True(t, chol.Factorize(sigma))
	y := mat.NewVecDense(24, flatten(data.X))
	var alpha mat.VecDense
	require.NoError(t, chol.SolveVecTo(&alpha, y))
	want := -0.5*mat.Dot(y, &alpha) - 0.5*chol.LogDet() - 12*math.Log(2*math.Pi)

	require.InDelta(t, want, got, 1e-8)
}

func TestDistributionSampling(t *testing.T) {
	m := newTestModel(t, nil, nil, 2)
	x := []float64{0, 1, 2}

	dist, err := m.Distribution(x, rand.NewPCG(1, 2))
	require.NoError(t, err)
	require.Equal(t, 6, dist.Dim())

	sample := dist.Rand(nil)
	require.Len(t, sample, 6)
	require.False(t, floats.HasNaN(sample))
	require.False(t, math.IsInf(dist.LogProb(sample), 0))
}

func TestPredictMatchesConditioning(t *testing.T) {
	data, err := synth.Generate(2, 5, synth.WithSeed(3))
	require.NoError(t, err)
	m := newTestModel(t, data.T, data.X, 2, WithLoading([]float64{0.8, 0.4}), WithPsi([]float64{0.05, 0.1}))

	xs := []float64{1.5, 6}
	mean, cov, err := m.Predict(xs)
	require.NoError(t, err)
	require.Equal(t, 4, mean.Len())
	require.Equal(t, 4, cov.SymmetricDim())

	// Condition the joint prior over train and test points by hand.
	kTrain, err := m.Kernel().Evaluate(data.T, data.T)
	require.NoError(t, err)
	sTrain, err := m.Likelihood().Marginal(kTrain)
	require.NoError(t, err)
	kCross, err := m.Kernel().Cross(data.T, xs)
	require.NoError(t, err)
	kTest, err := m.Kernel().Evaluate(xs, xs)
	require.NoError(t, err)

	var inv mat.Dense
	require.NoError(t, inv.Inverse(sTrain))
	y := mat.NewVecDense(10, flatten(data.X))

	var tmp mat.Dense
	tmp.Mul(kCross.T(), &inv)
	var wantMean mat.VecDense
	wantMean.MulVec(&tmp, y)
	var reduce, wantCov mat.Dense
	reduce.Mul(&tmp, kCross)
	wantCov.Sub(kTest, &reduce)

	require.True(t, mat.EqualApprox(&wantMean, mean, 1e-6))
	require.True(t, mat.EqualApprox(&wantCov, cov, 1e-6))

	// posterior variance never exceeds prior variance
	for i := 0; i < 4; i++ {
		require.LessOrEqual(t, cov.At(i, i), kTest.At(i, i)+1e-12)
	}
}

func TestPredictWithoutDataIsPrior(t *testing.T) {
	m := newTestModel(t, nil, nil, 2)
	xs := []float64{0, 3}
	mean, cov, err := m.Predict(xs)
	require.NoError(t, err)
	require.Equal(t, 0.0, mat.Norm(mean, 2))

	prior, err := m.Kernel().Evaluate(xs, xs)
	require.NoError(t, err)
	require.True(t, mat.EqualApprox(prior, cov, 1e-12))
}

func TestImputeNoMissing(t *testing.T) {
	data, err := synth.Generate(2, 4, synth.WithSeed(11))
	require.NoError(t, err)
	m := newTestModel(t, nil, nil, 2)

	filled, variance, err := m.Impute(data.T, data.X)
	require.NoError(t, err)
	require.True(t, mat.Equal(data.X, filled))
	require.Equal(t, 0.0, mat.Norm(variance, 1))
}

func TestImputeMatchesConditioning(t *testing.T) {
	m := newTestModel(t, nil, nil, 2, WithLoading([]float64{1, 2}), WithPsi([]float64{0.1, 0.2}))
	x := []float64{0, 1, 2}
	y := mat.NewDense(3, 2, []float64{
		0.5, 1.1,
		math.NaN(), 0.9,
		0.2, math.NaN(),
	})

	filled, variance, err := m.Impute(x, y)
	require.NoError(t, err)

	_, cov, err := m.Evaluate(x)
	require.NoError(t, err)
	sigma, err := m.Likelihood().Marginal(cov)
	require.NoError(t, err)

	observed := []int{0, 1, 3, 4}
	missing := []int{2, 5}
	flat := []float64{0.5, 1.1, 0, 0.9, 0.2, 0}

	sOO := mat.NewDense(4, 4, nil)
	for a, i := range observed {
		for b, j := range observed {
			sOO.Set(a, b, sigma.At(i, j))
		}
	}
	var inv mat.Dense
	require.NoError(t, inv.Inverse(sOO))
	yO := mat.NewVecDense(4, nil)
	for a, i := range observed {
		yO.SetVec(a, flat[i])
	}
	for _, j := range missing {
		s := mat.NewVecDense(4, nil)
		for a, i := range observed {
			s.SetVec(a, sigma.At(i, j))
		}
		var w mat.VecDense
		w.MulVec(&inv, s)
		wantMean := mat.Dot(&w, yO)
		wantVar := sigma.At(j, j) - mat.Dot(&w, s)

		r, c := j/2, j%2
		require.InDelta(t, wantMean, filled.At(r, c), 1e-9)
		require.InDelta(t, wantVar, variance.At(r, c), 1e-9)
		require.Greater(t, variance.At(r, c), 0.0)
	}

	// observed entries are untouched
	for _, i := range observed {
		require.Equal(t, flat[i], filled.At(i/2, i%2))
		require.Equal(t, 0.0, variance.At(i/2, i%2))
	}
	require.True(t, math.IsNaN(y.At(1, 0)), "input must not be modified")
}

func TestImputeAllMissing(t *testing.T) {
	m := newTestModel(t, nil, nil, 2)
	x := []float64{0, 1}
	y := mat.NewDense(2, 2, []float64{math.NaN(), math.NaN(), math.NaN(), math.NaN()})

	filled, variance, err := m.Impute(x, y)
	require.NoError(t, err)
	require.Equal(t, 0.0, mat.Norm(filled, 1))

	_, cov, err := m.Evaluate(x)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		require.InDelta(t, cov.At(i, i)+0.01, variance.At(i/2, i%2), 1e-9)
	}
}

func TestImputeRecoversSyntheticSignal(t *testing.T) {
	data, err := synth.Generate(4, 30, synth.WithSeed(5), synth.WithNoiseStd(0.05))
	require.NoError(t, err)
	masked := data.Mask(0.2)

	lambda := make([]float64, 4)
	for f := range lambda {
		lambda[f] = data.Lambda.At(f, 0)
	}
	m := newTestModel(t, nil, nil, 4, WithLoading(lambda), WithPsi([]float64{0.0025, 0.0025, 0.0025, 0.0025}))

	filled, _, err := m.Impute(data.T, masked)
	require.NoError(t, err)

	var errImputed, errZero float64
	for i := 0; i < 30; i++ {
		for f := 0; f < 4; f++ {
			if !math.IsNaN(masked.At(i, f)) {
				continue
			}
			errImputed += math.Abs(filled.At(i, f) - data.Exact.At(i, f))
			errZero += math.Abs(data.Exact.At(i, f))
		}
	}
	require.Less(t, errImputed, errZero)
}

func TestFactorizeJitter(t *testing.T) {
	m := newTestModel(t, nil, nil, 1)
	singular := mat.NewSymDense(2, []float64{1, 1, 1, 1})

	chol, err := m.factorize(singular)
	require.NoError(t, err)
	require.Equal(t, 2, chol.SymmetricDim())

	m.jitter = 0
	_, err = m.factorize(singular)
	require.ErrorIs(t, err, ErrNotPositiveDefinite)
}

package kernels

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	_ Kernel        = (*RBF)(nil)
	_ Kernel        = (*Matern12)(nil)
	_ Kernel        = (*Matern32)(nil)
	_ Kernel        = (*Matern52)(nil)
	_ Kernel        = (*Periodic)(nil)
	_ Parameterized = (*RBF)(nil)
	_ Parameterized = (*Matern12)(nil)
	_ Parameterized = (*Matern32)(nil)
	_ Parameterized = (*Matern52)(nil)
	_ Parameterized = (*Periodic)(nil)
)

// RBF is the squared exponential kernel
// k(a, b) = variance * exp(-(a-b)^2 / (2 lscale^2)).
type RBF struct {
	variance float64
	lscale   float64
}

// NewRBF creates a squared exponential kernel.
func NewRBF(variance, lscale float64) (*RBF, error) {
	k := &RBF{}
	if err := k.SetHyper(map[string]float64{"variance": variance, "lscale": lscale}); err != nil {
		return nil, err
	}
	return k, nil
}

// Cov returns the covariance between time points a and b.
func (k *RBF) Cov(a, b float64) float64 {
	d := (a - b) / k.lscale
	return k.variance * math.Exp(-0.5*d*d)
}

// Evaluate returns the len(t1) x len(t2) Gram matrix.
func (k *RBF) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance" and "lscale".
func (k *RBF) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance, "lscale": k.lscale}
}

// SetHyper updates the named hyperparameters; values must be positive.
func (k *RBF) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{"variance": &k.variance, "lscale": &k.lscale})
}

// Matern12 is the exponential (Ornstein-Uhlenbeck) kernel.
type Matern12 struct {
	variance float64
	lscale   float64
}

// NewMatern12 creates a Matérn kernel with ν = 1/2.
func NewMatern12(variance, lscale float64) (*Matern12, error) {
	k := &Matern12{}
	if err := k.SetHyper(map[string]float64{"variance": variance, "lscale": lscale}); err != nil {
		return nil, err
	}
	return k, nil
}

// Cov returns the covariance between time points a and b.
func (k *Matern12) Cov(a, b float64) float64 {
	return k.variance * math.Exp(-math.Abs(a-b)/k.lscale)
}

// Evaluate returns the len(t1) x len(t2) Gram matrix.
func (k *Matern12) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance" and "lscale".
func (k *Matern12) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance, "lscale": k.lscale}
}

// SetHyper updates the named hyperparameters; values must be positive.
func (k *Matern12) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{"variance": &k.variance, "lscale": &k.lscale})
}

// Matern32 is the Matérn kernel with smoothness 3/2.
type Matern32 struct {
	variance float64
	lscale   float64
}

// NewMatern32 creates a Matérn kernel with ν = 3/2.
func NewMatern32(variance, lscale float64) (*Matern32, error) {
	k := &Matern32{}
	if err := k.SetHyper(map[string]float64{"variance": variance, "lscale": lscale}); err != nil {
		return nil, err
	}
	return k, nil
}

// Cov returns the covariance between time points a and b.
func (k *Matern32) Cov(a, b float64) float64 {
	r := math.Sqrt(3) * math.Abs(a-b) / k.lscale
	return k.variance * (1 + r) * math.Exp(-r)
}

// Evaluate returns the len(t1) x len(t2) Gram matrix.
func (k *Matern32) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance" and "lscale".
func (k *Matern32) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance, "lscale": k.lscale}
}

// SetHyper updates the named hyperparameters; values must be positive.
func (k *Matern32) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{"variance": &k.variance, "lscale": &k.lscale})
}

// Matern52 is the Matérn kernel with smoothness 5/2.
type Matern52 struct {
	variance float64
	lscale   float64
}

// NewMatern52 creates a Matérn kernel with ν = 5/2.
func NewMatern52(variance, lscale float64) (*Matern52, error) {
	k := &Matern52{}
	if err := k.SetHyper(map[string]float64{"variance": variance, "lscale": lscale}); err != nil {
		return nil, err
	}
	return k, nil
}

// Cov returns the covariance between time points a and b.
func (k *Matern52) Cov(a, b float64) float64 {
	r := math.Sqrt(5) * math.Abs(a-b) / k.lscale
	return k.variance * (1 + r + r*r/3) * math.Exp(-r)
}

// Evaluate returns the len(t1) x len(t2) Gram matrix.
func (k *Matern52) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance" and "lscale".
func (k *Matern52) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance, "lscale": k.lscale}
}

// SetHyper updates the named hyperparameters; values must be positive.
func (k *Matern52) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{"variance": &k.variance, "lscale": &k.lscale})
}

// Periodic is the exp-sine-squared kernel
// k(a, b) = variance * exp(-2 sin^2(pi |a-b| / period) / lscale^2).
type Periodic struct {
	variance float64
	lscale   float64
	period   float64
}

// NewPeriodic creates a periodic kernel.
func NewPeriodic(variance, lscale, period float64) (*Periodic, error) {
	k := &Periodic{}
	err := k.SetHyper(map[string]float64{"variance": variance, "lscale": lscale, "period": period})
	if err != nil {
		return nil, err
	}
	return k, nil
}

// Cov returns the covariance between time points a and b.
func (k *Periodic) Cov(a, b float64) float64 {
	s := math.Sin(math.Pi * math.Abs(a-b) / k.period)
	return k.variance * math.Exp(-2*s*s/(k.lscale*k.lscale))
}

// Evaluate returns the len(t1) x len(t2) Gram matrix.
func (k *Periodic) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance", "lscale" and "period".
func (k *Periodic) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance, "lscale": k.lscale, "period": k.period}
}

// SetHyper updates the named hyperparameters; values must be positive.
func (k *Periodic) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{
		"variance": &k.variance,
		"lscale":   &k.lscale,
		"period":   &k.period,
	})
}

package gpfa

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// softplusThreshold is the point above which softplus and its inverse are
// the identity to double precision.
const softplusThreshold = 20.0

// Softplus maps any real x to log(1 + exp(x)) > 0. Results that would
// underflow to zero are clamped to the smallest positive float.
func Softplus(x float64) float64 {
	if x > softplusThreshold {
		return x
	}
	if v := math.Log1p(math.Exp(x)); v > 0 {
		return v
	}
	return math.SmallestNonzeroFloat64
}

// InverseSoftplus returns the raw value whose softplus is y.
// y must be positive and finite.
func InverseSoftplus(y float64) (float64, error) {
	if !(y > 0) || math.IsInf(y, 1) {
		return 0, fmt.Errorf("%w: %g is outside the positive domain", ErrInvalidParameter, y)
	}
	if y > softplusThreshold {
		return y, nil
	}
	// log(exp(y) - 1) rewritten to stay accurate for small y.
	raw := y + math.Log(-math.Expm1(-y))
	if math.IsInf(raw, 0) || math.IsNaN(raw) {
		return 0, fmt.Errorf("%w: inverse softplus of %g is not finite", ErrInvalidParameter, y)
	}
	return raw, nil
}

// PositiveDiag is a vector of strictly positive values, such as per-feature
// noise variances. It is stored as unconstrained raw values and exposed
// through Softplus, so an optimizer may move the raw values freely.
type PositiveDiag struct {
	raw *mat.VecDense
}

// NewPositiveDiag creates a parameter of length n whose value is all ones.
func NewPositiveDiag(n int) (*PositiveDiag, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: parameter length must be positive, got %d", ErrShapeMismatch, n)
	}
	one, err := InverseSoftplus(1)
	if err != nil {
		return nil, err
	}
	raw := make([]float64, n)
	for i := range raw {
		raw[i] = one
	}
	return &PositiveDiag{raw: mat.NewVecDense(n, raw)}, nil
}

// Len returns the number of entries.
func (p *PositiveDiag) Len() int {
	return p.raw.Len()
}

// Get returns a copy of the constrained values.
func (p *PositiveDiag) Get() *mat.VecDense {
	n := p.raw.Len()
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, Softplus(p.raw.AtVec(i)))
	}
	return out
}

// Set overwrites the parameter with the given constrained values.
// Nothing is modified unless every entry is valid.
func (p *PositiveDiag) Set(values []float64) error {
	if len(values) != p.raw.Len() {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidParameter, p.raw.Len(), len(values))
	}
	raw, err := inverseSoftplusAll(values)
	if err != nil {
		return err
	}
	copy(p.raw.RawVector().Data, raw)
	return nil
}

// rawValues and setRaw are used by the snapshot code only.
func (p *PositiveDiag) rawValues() []float64 {
	return append([]float64(nil), p.raw.RawVector().Data...)
}

func (p *PositiveDiag) setRaw(raw []float64) error {
	if len(raw) != p.raw.Len() {
		return fmt.Errorf("%w: expected %d raw values, got %d", ErrShapeMismatch, p.raw.Len(), len(raw))
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: raw value %d is not finite", ErrInvalidParameter, i)
		}
	}
	copy(p.raw.RawVector().Data, raw)
	return nil
}

func inverseSoftplusAll(values []float64) ([]float64, error) {
	raw := make([]float64, len(values))
	for i, v := range values {
		r, err := InverseSoftplus(v)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		raw[i] = r
	}
	return raw, nil
}

// Package kernels provides covariance functions over scalar time points.
// They are used as the latent kernel of a GPFA model, but any type
// satisfying Kernel can be plugged in.
package kernels

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidHyper is returned when a hyperparameter is outside its domain.
var ErrInvalidHyper = errors.New("kernels: invalid hyperparameter")

// Kernel evaluates the Gram matrix between two sets of time points.
// For equal point sets the result must be symmetric positive semi-definite.
type Kernel interface {
	Evaluate(t1, t2 []float64) *mat.Dense
}

// Parameterized is implemented by kernels that expose their hyperparameters
// for checkpointing.
type Parameterized interface {
	Hyper() map[string]float64
	SetHyper(h map[string]float64) error
}

// Cov is a scalar stationary covariance between two time points.
type Cov interface {
	Cov(a, b float64) float64
}

// Gram fills a len(t1) x len(t2) matrix with k.Cov(t1[i], t2[j]).
// When t1 and t2 are the same slice only the upper triangle is computed.
func Gram(k Cov, t1, t2 []float64) *mat.Dense {
	out := mat.NewDense(len(t1), len(t2), nil)
	raw := out.RawMatrix()
	same := len(t1) == len(t2) && len(t1) > 0 && &t1[0] == &t2[0]
	for i, a := range t1 {
		row := raw.Data[i*raw.Stride : i*raw.Stride+len(t2)]
		if same {
			for j := i; j < len(t2); j++ {
				v := k.Cov(a, t2[j])
				row[j] = v
				raw.Data[j*raw.Stride+i] = v
			}
			continue
		}
		for j, b := range t2 {
			row[j] = k.Cov(a, b)
		}
	}
	return out
}

// Eye returns the n x n identity matrix.
func Eye(n int) *mat.Dense {
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, 1)
	}
	return out
}

func checkPositive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: %s must be positive and finite, got %g", ErrInvalidHyper, name, v)
	}
	return nil
}

// setHyper applies named values after validating all of them. Unknown
// names are rejected.
func setHyper(h map[string]float64, fields map[string]*float64) error {
	for name, v := range h {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("%w: unknown hyperparameter %q", ErrInvalidHyper, name)
		}
		if err := checkPositive(name, v); err != nil {
			return err
		}
	}
	for name, v := range h {
		*fields[name] = v
	}
	return nil
}

package kernels

import (
	"fmt"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

var (
	_ Kernel        = (*Constant)(nil)
	_ Kernel        = (*Add)(nil)
	_ Kernel        = (*Scale)(nil)
	_ Parameterized = (*Constant)(nil)
	_ Parameterized = (*Add)(nil)
	_ Parameterized = (*Scale)(nil)
)

// Constant is the kernel k(a, b) = variance.
type Constant struct {
	variance float64
}

// NewConstant creates a kernel with the same covariance for every pair.
func NewConstant(variance float64) (*Constant, error) {
	if err := checkPositive("variance", variance); err != nil {
		return nil, err
	}
	return &Constant{variance: variance}, nil
}

// Cov returns the constant variance.
func (k *Constant) Cov(a, b float64) float64 { return k.variance }

// Evaluate returns a len(t1) x len(t2) matrix filled with the variance.
func (k *Constant) Evaluate(t1, t2 []float64) *mat.Dense { return Gram(k, t1, t2) }

// Hyper reports "variance".
func (k *Constant) Hyper() map[string]float64 {
	return map[string]float64{"variance": k.variance}
}

// SetHyper updates "variance"; it must be positive.
func (k *Constant) SetHyper(h map[string]float64) error {
	return setHyper(h, map[string]*float64{"variance": &k.variance})
}

// Add is the sum of several kernels. Nested sums are flattened.
type Add struct {
	parts []Kernel
}

// NewAdd returns the sum of the given kernels. Nested sums are flattened.
func NewAdd(first, second Kernel, rest ...Kernel) *Add {
	all := append([]Kernel{first, second}, rest...)
	parts := make([]Kernel, 0, len(all))
	for _, k := range all {
		switch k := k.(type) {
		case *Add:
			parts = append(parts, k.parts...)
		default:
			parts = append(parts, k)
		}
	}
	return &Add{parts: parts}
}

// Parts returns the flattened summands.
func (k *Add) Parts() []Kernel {
	return append([]Kernel(nil), k.parts...)
}

// Evaluate returns the elementwise sum of the summands' matrices.
func (k *Add) Evaluate(t1, t2 []float64) *mat.Dense {
	out := mat.DenseCopyOf(k.parts[0].Evaluate(t1, t2))
	for _, part := range k.parts[1:] {
		out.Add(out, part.Evaluate(t1, t2))
	}
	return out
}

// Hyper reports the hyperparameters of every parameterized summand,
// prefixed by its position, e.g. "1.lscale".
func (k *Add) Hyper() map[string]float64 {
	out := make(map[string]float64)
	for i, part := range k.parts {
		p, ok := part.(Parameterized)
		if !ok {
			continue
		}
		for name, v := range p.Hyper() {
			out[strconv.Itoa(i)+"."+name] = v
		}
	}
	return out
}

// SetHyper routes prefixed names to the matching summand.
func (k *Add) SetHyper(h map[string]float64) error {
	grouped := make(map[int]map[string]float64)
	for name, v := range h {
		idx, sub, ok := strings.Cut(name, ".")
		i, err := strconv.Atoi(idx)
		if !ok || err != nil || i < 0 || i >= len(k.parts) {
			return fmt.Errorf("%w: unknown hyperparameter %q", ErrInvalidHyper, name)
		}
		if _, ok := k.parts[i].(Parameterized); !ok {
			return fmt.Errorf("%w: summand %d has no hyperparameters", ErrInvalidHyper, i)
		}
		if err := checkPositive(name, v); err != nil {
			return err
		}
		if grouped[i] == nil {
			grouped[i] = make(map[string]float64)
		}
		grouped[i][sub] = v
	}
	// Validate against every summand before writing into any of them.
	for i, sub := range grouped {
		current := k.parts[i].(Parameterized).Hyper()
		for name := range sub {
			if _, ok := current[name]; !ok {
				return fmt.Errorf("%w: unknown hyperparameter %q", ErrInvalidHyper, strconv.Itoa(i)+"."+name)
			}
		}
	}
	for i, sub := range grouped {
		if err := k.parts[i].(Parameterized).SetHyper(sub); err != nil {
			return err
		}
	}
	return nil
}

// Scale multiplies a base kernel by a positive output scale.
type Scale struct {
	base        Kernel
	outputscale float64
}

// NewScale multiplies base by a positive outputscale.
func NewScale(base Kernel, outputscale float64) (*Scale, error) {
	if err := checkPositive("outputscale", outputscale); err != nil {
		return nil, err
	}
	return &Scale{base: base, outputscale: outputscale}, nil
}

// Base returns the scaled kernel.
func (k *Scale) Base() Kernel { return k.base }

// Evaluate returns outputscale times the base matrix.
func (k *Scale) Evaluate(t1, t2 []float64) *mat.Dense {
	var out mat.Dense
	out.Scale(k.outputscale, k.base.Evaluate(t1, t2))
	return &out
}

// Hyper reports "outputscale" and the base hyperparameters prefixed
// with "base.".
func (k *Scale) Hyper() map[string]float64 {
	out := map[string]float64{"outputscale": k.outputscale}
	if p, ok := k.base.(Parameterized); ok {
		for name, v := range p.Hyper() {
			out["base."+name] = v
		}
	}
	return out
}

// SetHyper updates "outputscale" and any "base." hyperparameters.
func (k *Scale) SetHyper(h map[string]float64) error {
	base := make(map[string]float64)
	scale, hasScale := 0.0, false
	for name, v := range h {
		if err := checkPositive(name, v); err != nil {
			return err
		}
		switch {
		case name == "outputscale":
			scale, hasScale = v, true
		case strings.HasPrefix(name, "base."):
			base[strings.TrimPrefix(name, "base.")] = v
		default:
			return fmt.Errorf("%w: unknown hyperparameter %q", ErrInvalidHyper, name)
		}
	}
	if len(base) > 0 {
		p, ok := k.base.(Parameterized)
		if !ok {
			return fmt.Errorf("%w: base kernel has no hyperparameters", ErrInvalidHyper)
		}
		if err := p.SetHyper(base); err != nil {
			return err
		}
	}
	if hasScale {
		k.outputscale = scale
	}
	return nil
}

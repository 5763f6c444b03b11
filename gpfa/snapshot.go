package gpfa

import (
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/n0madic/go-gpfa/kernels"
)

// Parameter names used in snapshots.
const (
	ParamLoading         = "lambda"
	ParamRawPsi          = "raw_psi_diag"
	ParamLikelihoodNoise = "likelihood.raw_noise"
	latentPrefix         = "latent."
)

const stateVersion = 1

// State is the serializable snapshot of a model's parameters.
type State struct {
	Version    int                  `gob:"version"`
	NFeatures  int                  `gob:"n_features"`
	LatentDims int                  `gob:"latent_dims"`
	Params     map[string][]float64 `gob:"params"`
}

// Params returns a copy of every learnable parameter as a flat array.
// ψ is reported in its raw, unconstrained form. Latent kernel
// hyperparameters appear as "latent.<name>" when the latent kernel
// implements kernels.Parameterized.
func (k *Kernel) Params() map[string][]float64 {
	out := map[string][]float64{
		ParamLoading: append([]float64(nil), k.lambda.RawMatrix().Data...),
		ParamRawPsi:  k.psi.rawValues(),
	}
	if p, ok := k.latent.(kernels.Parameterized); ok {
		for name, v := range p.Hyper() {
			out[latentPrefix+name] = []float64{v}
		}
	}
	return out
}

// SetParams restores parameters produced by Params. Missing names are left
// untouched; unknown names are rejected. Kernel-owned values are validated
// before any of them is applied.
func (k *Kernel) SetParams(params map[string][]float64) error {
	var (
		lambda, rawPsi []float64
		hyper          = make(map[string]float64)
	)
	for name, v := range params {
		switch {
		case name == ParamLoading:
			if len(v) != k.nFeatures*k.latentDims {
				return fmt.Errorf("%w: %s has %d entries, want %d", ErrShapeMismatch, name, len(v), k.nFeatures*k.latentDims)
			}
			for i, x := range v {
				if math.IsNaN(x) || math.IsInf(x, 0) {
					return fmt.Errorf("%w: %s entry %d is not finite", ErrInvalidParameter, name, i)
				}
			}
			lambda = v
		case name == ParamRawPsi:
			if len(v) != k.nFeatures {
				return fmt.Errorf("%w: %s has %d entries, want %d", ErrShapeMismatch, name, len(v), k.nFeatures)
			}
			for i, x := range v {
				if math.IsNaN(x) || math.IsInf(x, 0) {
					return fmt.Errorf("%w: %s entry %d is not finite", ErrInvalidParameter, name, i)
				}
			}
			rawPsi = v
		case strings.HasPrefix(name, latentPrefix):
			if len(v) != 1 {
				return fmt.Errorf("%w: %s has %d entries, want 1", ErrShapeMismatch, name, len(v))
			}
			hyper[strings.TrimPrefix(name, latentPrefix)] = v[0]
		default:
			return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameter, name)
		}
	}

	if len(hyper) > 0 {
		p, ok := k.latent.(kernels.Parameterized)
		if !ok {
			return fmt.Errorf("%w: latent kernel has no hyperparameters", ErrInvalidParameter)
		}
		if err := p.SetHyper(hyper); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidParameter, err)
		}
	}
	if rawPsi != nil {
		if err := k.psi.setRaw(rawPsi); err != nil {
			return err
		}
	}
	if lambda != nil {
		copy(k.lambda.RawMatrix().Data, lambda)
	}
	return nil
}

// Params returns the kernel parameters plus the likelihood noise when the
// likelihood is a GaussianLikelihood.
func (m *Model) Params() map[string][]float64 {
	out := m.kernel.Params()
	if gl, ok := m.likelihood.(*GaussianLikelihood); ok {
		out[ParamLikelihoodNoise] = []float64{gl.rawNoise}
	}
	return out
}

// SetParams restores parameters produced by Params.
func (m *Model) SetParams(params map[string][]float64) error {
	kernelParams := make(map[string][]float64, len(params))
	var rawNoise []float64
	for name, v := range params {
		if name == ParamLikelihoodNoise {
			rawNoise = v
			continue
		}
		kernelParams[name] = v
	}
	if rawNoise != nil {
		gl, ok := m.likelihood.(*GaussianLikelihood)
		if !ok {
			return fmt.Errorf("%w: likelihood has no noise parameter", ErrInvalidParameter)
		}
		if len(rawNoise) != 1 || math.IsNaN(rawNoise[0]) || math.IsInf(rawNoise[0], 0) {
			return fmt.Errorf("%w: %s must be a single finite value", ErrInvalidParameter, ParamLikelihoodNoise)
		}
		if err := m.kernel.SetParams(kernelParams); err != nil {
			return err
		}
		gl.rawNoise = rawNoise[0]
		return nil
	}
	return m.kernel.SetParams(kernelParams)
}

// Save serializes the model parameters to gob format. Training data and the
// latent kernel structure are not saved; Load expects a model built with the
// same configuration.
func (m *Model) Save(w io.Writer) error {
	state := State{
		Version:    stateVersion,
		NFeatures:  m.nFeatures,
		LatentDims: m.kernel.latentDims,
		Params:     m.Params(),
	}
	return gob.NewEncoder(w).Encode(state)
}

// Load restores parameters written by Save into m.
func (m *Model) Load(r io.Reader) error {
	var state State
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return err
	}
	if state.Version != stateVersion {
		return fmt.Errorf("%w: gob version %d", ErrUnsupportedConfiguration, state.Version)
	}
	if state.NFeatures != m.nFeatures || state.LatentDims != m.kernel.latentDims {
		return fmt.Errorf("%w: snapshot has %d features and %d latent dims, model has %d and %d",
			ErrShapeMismatch, state.NFeatures, state.LatentDims, m.nFeatures, m.kernel.latentDims)
	}
	return m.SetParams(state.Params)
}

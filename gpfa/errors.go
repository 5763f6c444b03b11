package gpfa

import "errors"

// Sentinel errors. They are returned wrapped with context; match them with
// errors.Is.
var (
	// ErrUnsupportedConfiguration marks a feature that is intentionally not
	// implemented: more than one latent dimension, diagonal-only or batched
	// kernel evaluation.
	ErrUnsupportedConfiguration = errors.New("gpfa: unsupported configuration")

	// ErrShapeMismatch is returned when a matrix or vector does not have the
	// dimensions derived from the feature and observation counts.
	ErrShapeMismatch = errors.New("gpfa: shape mismatch")

	// ErrInvalidParameter is returned when a parameter value lies outside
	// its constrained domain.
	ErrInvalidParameter = errors.New("gpfa: invalid parameter")

	// ErrNotPositiveDefinite is returned by inference routines when the
	// observation covariance cannot be factorized, even after jitter.
	ErrNotPositiveDefinite = errors.New("gpfa: covariance is not positive definite")
)

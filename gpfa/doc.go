// Package gpfa implements Gaussian Process Factor Analysis: observations of
// several features over time are modeled as noisy linear projections of a
// single latent Gaussian process.
//
// For time points t and a latent kernel k, the joint covariance of all
// features is
//
//	Σ = K ⊗ ΛΛᵀ + I ⊗ diag(ψ),  K[i, j] = k(t[i], t[j])
//
// where Λ is the loading vector and ψ the per-feature noise variances.
// Kernel builds Σ, ZeroMean supplies the prior mean, and Model combines
// both with a Likelihood for exact inference: log marginal likelihood,
// posterior prediction and imputation of missing entries.
//
// Only one latent dimension is supported.
package gpfa

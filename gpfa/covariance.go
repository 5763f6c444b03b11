package gpfa

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"
)

// BuildCovariance assembles the joint covariance of nFeatures observed
// variables at nObs time points. The result is an nObs x nObs grid of
// nFeatures x nFeatures blocks laid out row-major, observation-major:
//
//	block(i, j) = Λ · K[i, j] · Λᵀ           for i != j
//	block(i, i) = Λ · K[i, i] · Λᵀ + diag(ψ)
//
// lambda is nFeatures x 1, kLatent is nObs x nObs and psi has length
// nFeatures. All blocks are computed at once as K ⊗ ΛΛᵀ. The result is
// symmetric when kLatent is.
func BuildCovariance(lambda, kLatent mat.Matrix, psi mat.Vector, nFeatures, nObs int) (*mat.Dense, error) {
	llt, err := checkCovarianceArgs(lambda, kLatent, psi, nFeatures, nObs)
	if err != nil {
		return nil, err
	}
	var cov mat.Dense
	cov.Kronecker(kLatent, llt)
	addBlockDiag(&cov, psi, nFeatures, nObs)
	return &cov, nil
}

// BuildCovarianceBlocks computes the same matrix as BuildCovariance with an
// explicit loop over blocks. Block rows are split across workers; each worker
// writes a disjoint set of rows so no locking is needed. workers <= 1 runs on
// the calling goroutine.
func BuildCovarianceBlocks(lambda, kLatent mat.Matrix, psi mat.Vector, nFeatures, nObs, workers int) (*mat.Dense, error) {
	llt, err := checkCovarianceArgs(lambda, kLatent, psi, nFeatures, nObs)
	if err != nil {
		return nil, err
	}
	n := nFeatures * nObs
	cov := mat.NewDense(n, n, nil)

	fillRow := func(i int) {
		for j := 0; j < nObs; j++ {
			block := cov.Slice(i*nFeatures, (i+1)*nFeatures, j*nFeatures, (j+1)*nFeatures).(*mat.Dense)
			block.Scale(kLatent.At(i, j), llt)
			if i == j {
				for f := 0; f < nFeatures; f++ {
					block.Set(f, f, block.At(f, f)+psi.AtVec(f))
				}
			}
		}
	}

	if workers <= 1 || nObs == 1 {
		for i := 0; i < nObs; i++ {
			fillRow(i)
		}
		return cov, nil
	}
	if workers > nObs {
		workers = nObs
	}

	rows := make(chan int, nObs)
	for i := 0; i < nObs; i++ {
		rows <- i
	}
	close(rows)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range rows {
				fillRow(i)
			}
		}()
	}
	wg.Wait()
	return cov, nil
}

// CrossCovariance returns kCross ⊗ ΛΛᵀ for a rectangular latent kernel
// matrix, i.e. the covariance between observations at two different sets of
// time points. No noise term is added.
func CrossCovariance(lambda, kCross mat.Matrix, nFeatures int) (*mat.Dense, error) {
	if err := checkLoading(lambda, nFeatures); err != nil {
		return nil, err
	}
	if kCross == nil {
		return nil, fmt.Errorf("%w: latent kernel matrix is nil", ErrShapeMismatch)
	}
	var llt, cov mat.Dense
	llt.Mul(lambda, lambda.T())
	cov.Kronecker(kCross, &llt)
	return &cov, nil
}

func checkLoading(lambda mat.Matrix, nFeatures int) error {
	if nFeatures <= 0 {
		return fmt.Errorf("%w: feature count must be positive, got %d", ErrShapeMismatch, nFeatures)
	}
	if lambda == nil {
		return fmt.Errorf("%w: loading matrix is nil", ErrShapeMismatch)
	}
	if r, c := lambda.Dims(); r != nFeatures || c != 1 {
		return fmt.Errorf("%w: loading matrix is %dx%d, want %dx1", ErrShapeMismatch, r, c, nFeatures)
	}
	return nil
}

// checkCovarianceArgs validates every argument before anything is allocated
// and returns ΛΛᵀ.
func checkCovarianceArgs(lambda, kLatent mat.Matrix, psi mat.Vector, nFeatures, nObs int) (*mat.Dense, error) {
	if err := checkLoading(lambda, nFeatures); err != nil {
		return nil, err
	}
	if nObs <= 0 {
		return nil, fmt.Errorf("%w: observation count must be positive, got %d", ErrShapeMismatch, nObs)
	}
	if kLatent == nil {
		return nil, fmt.Errorf("%w: latent kernel matrix is nil", ErrShapeMismatch)
	}
	if r, c := kLatent.Dims(); r != nObs || c != nObs {
		return nil, fmt.Errorf("%w: latent kernel matrix is %dx%d, want %dx%d", ErrShapeMismatch, r, c, nObs, nObs)
	}
	if psi == nil {
		return nil, fmt.Errorf("%w: noise diagonal is nil", ErrShapeMismatch)
	}
	if psi.Len() != nFeatures {
		return nil, fmt.Errorf("%w: noise diagonal has length %d, want %d", ErrShapeMismatch, psi.Len(), nFeatures)
	}
	llt := mat.NewDense(nFeatures, nFeatures, nil)
	llt.Mul(lambda, lambda.T())
	return llt, nil
}

// addBlockDiag adds ψ to the diagonal of every diagonal block, which is the
// same as adding I ⊗ diag(ψ).
func addBlockDiag(cov *mat.Dense, psi mat.Vector, nFeatures, nObs int) {
	for i := 0; i < nObs; i++ {
		for f := 0; f < nFeatures; f++ {
			k := i*nFeatures + f
			cov.Set(k, k, cov.At(k, k)+psi.AtVec(f))
		}
	}
}

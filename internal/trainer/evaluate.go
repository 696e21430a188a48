package trainer

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Juary88/keras-ensemblng/internal/nn"
)

// Predictor is any inference-only classifier: a trained network or an
// ensemble derived from trained members.
type Predictor interface {
	Predict(*nn.Tensor) (*nn.Tensor, error)
}

// EvaluateError runs batched inference over the full test set and
// returns the misclassification rate: the fraction of examples whose
// arg-max predicted class differs from the true class. It never
// mutates parameters and is deterministic for fixed weights and data.
func EvaluateError(p Predictor, in *nn.Input, images *mat.Dense, labels []int, batchSize int) (float64, error) {
	n, cols := images.Dims()
	if n == 0 {
		return 0, errors.New("trainer: empty test set")
	}
	if n != len(labels) {
		return 0, errors.New("trainer: image and label counts differ")
	}
	if cols != in.Dims() {
		return 0, nn.ErrShapeMismatch
	}
	if batchSize <= 0 {
		batchSize = 32
	}

	wrong := 0
	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}
		batch := gatherBatch(images, rangeRows(start, end), in)
		probs, err := p.Predict(batch)
		if err != nil {
			return 0, err
		}
		classes := probs.C
		for i := 0; i < probs.N; i++ {
			pred := floats.MaxIdx(probs.Data[i*classes : (i+1)*classes])
			if pred != labels[start+i] {
				wrong++
			}
		}
	}
	return float64(wrong) / float64(n), nil
}

package nn

import "math"

const lossEpsilon = 1e-12

// CrossEntropy returns the mean multi-class cross-entropy of softmax
// outputs against one-hot targets, and the gradient with respect to
// the probabilities. probs is Nx1x1xC; oneHot is row-major NxC.
func CrossEntropy(probs *Tensor, oneHot []float64) (float64, *Tensor) {
	grad := NewTensor(probs.N, probs.H, probs.W, probs.C)
	invN := 1 / float64(probs.N)
	loss := 0.0
	for i, y := range oneHot {
		if y == 0 {
			continue
		}
		p := probs.Data[i]
		if p < lossEpsilon {
			p = lossEpsilon
		}
		loss -= y * math.Log(p) * invN
		grad.Data[i] = -y / p * invN
	}
	return loss, grad
}

// Adam is the adaptive moment optimizer with bias correction.
type Adam struct {
	LearnRate float64
	Beta1     float64
	Beta2     float64
	Eps       float64

	m [][]float64
	v [][]float64
	t int
}

// NewAdam builds an Adam optimizer with standard betas.
func NewAdam(lr float64) *Adam {
	return &Adam{LearnRate: lr, Beta1: 0.9, Beta2: 0.999, Eps: 1e-8}
}

// Step applies one update. params and grads are parallel slice groups
// as returned by Network.Params and Network.Grads.
func (a *Adam) Step(params, grads [][]float64) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for i, p := range params {
			a.m[i] = make([]float64, len(p))
			a.v[i] = make([]float64, len(p))
		}
	}
	a.t++
	c1 := 1 - math.Pow(a.Beta1, float64(a.t))
	c2 := 1 - math.Pow(a.Beta2, float64(a.t))
	for i, p := range params {
		g := grads[i]
		m := a.m[i]
		v := a.v[i]
		for j := range p {
			m[j] = a.Beta1*m[j] + (1-a.Beta1)*g[j]
			v[j] = a.Beta2*v[j] + (1-a.Beta2)*g[j]*g[j]
			mh := m[j] / c1
			vh := v[j] / c2
			p[j] -= a.LearnRate * mh / (math.Sqrt(vh) + a.Eps)
		}
	}
}

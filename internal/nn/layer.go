package nn

import (
	"math"
	"math/rand"
)

// Layer is one node in the sequential computation graph.
type Layer interface {
	Forward(x *Tensor, train bool) *Tensor
	Backward(grad *Tensor) *Tensor
}

// ParamLayer is a layer with trainable state. Params and Grads return
// parallel slices; optimizers update Params in place.
type ParamLayer interface {
	Layer
	Params() [][]float64
	Grads() [][]float64
}

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	mask []bool
}

func (l *ReLU) Forward(x *Tensor, train bool) *Tensor {
	out := x.Clone()
	l.mask = make([]bool, len(out.Data))
	for i, v := range out.Data {
		if v > 0 {
			l.mask[i] = true
		} else {
			out.Data[i] = 0
		}
	}
	return out
}

func (l *ReLU) Backward(grad *Tensor) *Tensor {
	out := grad.Clone()
	for i := range out.Data {
		if !l.mask[i] {
			out.Data[i] = 0
		}
	}
	return out
}

// Dropout randomly zeroes units during training, scaling survivors by
// 1/(1-ratio) so evaluation mode is the identity.
type Dropout struct {
	Ratio float64
	rng   *rand.Rand
	mask  []float64
}

// NewDropout builds a dropout layer drawing masks from rng.
func NewDropout(ratio float64, rng *rand.Rand) *Dropout {
	return &Dropout{Ratio: ratio, rng: rng}
}

func (l *Dropout) Forward(x *Tensor, train bool) *Tensor {
	if !train || l.Ratio <= 0 {
		l.mask = nil
		return x.Clone()
	}
	keep := 1 - l.Ratio
	scale := 1 / keep
	out := x.Clone()
	l.mask = make([]float64, len(out.Data))
	for i := range out.Data {
		if l.rng.Float64() < keep {
			l.mask[i] = scale
			out.Data[i] *= scale
		} else {
			out.Data[i] = 0
		}
	}
	return out
}

func (l *Dropout) Backward(grad *Tensor) *Tensor {
	out := grad.Clone()
	if l.mask == nil {
		return out
	}
	for i := range out.Data {
		out.Data[i] *= l.mask[i]
	}
	return out
}

// GlobalAvgPool reduces each channel of the spatial map to its mean,
// producing an Nx1x1xC tensor.
type GlobalAvgPool struct {
	h, w int
}

func (l *GlobalAvgPool) Forward(x *Tensor, train bool) *Tensor {
	l.h, l.w = x.H, x.W
	out := NewTensor(x.N, 1, 1, x.C)
	inv := 1 / float64(x.H*x.W)
	for n := 0; n < x.N; n++ {
		for y := 0; y < x.H; y++ {
			for xx := 0; xx < x.W; xx++ {
				for c := 0; c < x.C; c++ {
					out.Data[n*x.C+c] += x.At(n, y, xx, c) * inv
				}
			}
		}
	}
	return out
}

func (l *GlobalAvgPool) Backward(grad *Tensor) *Tensor {
	out := NewTensor(grad.N, l.h, l.w, grad.C)
	inv := 1 / float64(l.h*l.w)
	for n := 0; n < grad.N; n++ {
		for c := 0; c < grad.C; c++ {
			g := grad.Data[n*grad.C+c] * inv
			for y := 0; y < l.h; y++ {
				for x := 0; x < l.w; x++ {
					out.Set(n, y, x, c, g)
				}
			}
		}
	}
	return out
}

// Softmax normalizes the channel dimension at every spatial position
// into a probability distribution.
type Softmax struct {
	probs *Tensor
}

func (l *Softmax) Forward(x *Tensor, train bool) *Tensor {
	out := x.Clone()
	spatial := x.N * x.H * x.W
	for i := 0; i < spatial; i++ {
		row := out.Data[i*x.C : (i+1)*x.C]
		maxV := row[0]
		for _, v := range row {
			if v > maxV {
				maxV = v
			}
		}
		sum := 0.0
		for j, v := range row {
			e := math.Exp(v - maxV)
			row[j] = e
			sum += e
		}
		inv := 1 / sum
		for j := range row {
			row[j] *= inv
		}
	}
	l.probs = out
	return out
}

func (l *Softmax) Backward(grad *Tensor) *Tensor {
	out := grad.Clone()
	p := l.probs
	spatial := p.N * p.H * p.W
	for i := 0; i < spatial; i++ {
		pr := p.Data[i*p.C : (i+1)*p.C]
		g := grad.Data[i*p.C : (i+1)*p.C]
		dot := 0.0
		for j := range pr {
			dot += pr[j] * g[j]
		}
		o := out.Data[i*p.C : (i+1)*p.C]
		for j := range pr {
			o[j] = pr[j] * (g[j] - dot)
		}
	}
	return out
}

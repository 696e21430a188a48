package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Conv2D is a 2D convolution over NHWC tensors, computed as an im2col
// expansion followed by a single dense matrix product.
type Conv2D struct {
	In, Out int
	Size    int
	Stride  int
	Pad     int

	weight *mat.Dense // (Size*Size*In) x Out
	bias   []float64
	dW     *mat.Dense
	dB     []float64

	cols   *mat.Dense
	inH    int
	inW    int
	outH   int
	outW   int
	batchN int
}

// NewConv2D builds a convolution with He-normal initialized weights.
func NewConv2D(in, out, size, stride, pad int, rng *rand.Rand) *Conv2D {
	if stride <= 0 {
		stride = 1
	}
	fanIn := size * size * in
	std := math.Sqrt(2 / float64(fanIn))
	w := make([]float64, fanIn*out)
	for i := range w {
		w[i] = rng.NormFloat64() * std
	}
	return &Conv2D{
		In:     in,
		Out:    out,
		Size:   size,
		Stride: stride,
		Pad:    pad,
		weight: mat.NewDense(fanIn, out, w),
		bias:   make([]float64, out),
		dW:     mat.NewDense(fanIn, out, nil),
		dB:     make([]float64, out),
	}
}

// OutDims returns the spatial output size for an HxW input.
func (l *Conv2D) OutDims(h, w int) (int, int) {
	oh := (h+2*l.Pad-l.Size)/l.Stride + 1
	ow := (w+2*l.Pad-l.Size)/l.Stride + 1
	return oh, ow
}

func (l *Conv2D) Forward(x *Tensor, train bool) *Tensor {
	oh, ow := l.OutDims(x.H, x.W)
	l.inH, l.inW, l.outH, l.outW, l.batchN = x.H, x.W, oh, ow, x.N

	rows := x.N * oh * ow
	patch := l.Size * l.Size * l.In
	colData := make([]float64, rows*patch)
	r := 0
	for n := 0; n < x.N; n++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				base := r * patch
				i := 0
				for ky := 0; ky < l.Size; ky++ {
					iy := oy*l.Stride + ky - l.Pad
					for kx := 0; kx < l.Size; kx++ {
						ix := ox*l.Stride + kx - l.Pad
						if iy >= 0 && iy < x.H && ix >= 0 && ix < x.W {
							src := ((n*x.H+iy)*x.W + ix) * x.C
							copy(colData[base+i:base+i+l.In], x.Data[src:src+l.In])
						}
						i += l.In
					}
				}
				r++
			}
		}
	}
	l.cols = mat.NewDense(rows, patch, colData)

	out := NewTensor(x.N, oh, ow, l.Out)
	prod := mat.NewDense(rows, l.Out, out.Data)
	prod.Mul(l.cols, l.weight)
	for i := 0; i < rows; i++ {
		row := out.Data[i*l.Out : (i+1)*l.Out]
		for c := range row {
			row[c] += l.bias[c]
		}
	}
	return out
}

func (l *Conv2D) Backward(grad *Tensor) *Tensor {
	rows := l.batchN * l.outH * l.outW
	g := mat.NewDense(rows, l.Out, grad.Data)

	l.dW.Mul(l.cols.T(), g)
	for c := range l.dB {
		l.dB[c] = 0
	}
	for i := 0; i < rows; i++ {
		row := grad.Data[i*l.Out : (i+1)*l.Out]
		for c, v := range row {
			l.dB[c] += v
		}
	}

	patch := l.Size * l.Size * l.In
	dCols := mat.NewDense(rows, patch, nil)
	dCols.Mul(g, l.weight.T())

	dx := NewTensor(l.batchN, l.inH, l.inW, l.In)
	r := 0
	raw := dCols.RawMatrix().Data
	for n := 0; n < l.batchN; n++ {
		for oy := 0; oy < l.outH; oy++ {
			for ox := 0; ox < l.outW; ox++ {
				base := r * patch
				i := 0
				for ky := 0; ky < l.Size; ky++ {
					iy := oy*l.Stride + ky - l.Pad
					for kx := 0; kx < l.Size; kx++ {
						ix := ox*l.Stride + kx - l.Pad
						if iy >= 0 && iy < l.inH && ix >= 0 && ix < l.inW {
							dst := ((n*l.inH+iy)*l.inW + ix) * l.In
							for c := 0; c < l.In; c++ {
								dx.Data[dst+c] += raw[base+i+c]
							}
						}
						i += l.In
					}
				}
				r++
			}
		}
	}
	return dx
}

func (l *Conv2D) Params() [][]float64 {
	return [][]float64{l.weight.RawMatrix().Data, l.bias}
}

func (l *Conv2D) Grads() [][]float64 {
	return [][]float64{l.dW.RawMatrix().Data, l.dB}
}

// MaxPool takes the channelwise maximum over pooling windows.
type MaxPool struct {
	Size   int
	Stride int

	argmax []int
	inH    int
	inW    int
	inC    int
	batchN int
}

func (l *MaxPool) Forward(x *Tensor, train bool) *Tensor {
	oh := (x.H-l.Size)/l.Stride + 1
	ow := (x.W-l.Size)/l.Stride + 1
	l.inH, l.inW, l.inC, l.batchN = x.H, x.W, x.C, x.N

	out := NewTensor(x.N, oh, ow, x.C)
	l.argmax = make([]int, len(out.Data))
	o := 0
	for n := 0; n < x.N; n++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				for c := 0; c < x.C; c++ {
					best := math.Inf(-1)
					bestIdx := -1
					for ky := 0; ky < l.Size; ky++ {
						iy := oy*l.Stride + ky
						for kx := 0; kx < l.Size; kx++ {
							ix := ox*l.Stride + kx
							idx := ((n*x.H+iy)*x.W+ix)*x.C + c
							if v := x.Data[idx]; v > best {
								best = v
								bestIdx = idx
							}
						}
					}
					out.Data[o] = best
					l.argmax[o] = bestIdx
					o++
				}
			}
		}
	}
	return out
}

func (l *MaxPool) Backward(grad *Tensor) *Tensor {
	dx := NewTensor(l.batchN, l.inH, l.inW, l.inC)
	for i, idx := range l.argmax {
		dx.Data[idx] += grad.Data[i]
	}
	return dx
}

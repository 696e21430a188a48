package nn

import "fmt"

// Input describes the shared input placeholder every network is built
// against. Builders keep a reference to the same Input so that derived
// graphs (ensembles) can verify they consume identical wiring.
type Input struct {
	H, W, C int
}

// Dims returns the flattened feature count of one example.
func (in *Input) Dims() int {
	return in.H * in.W * in.C
}

// Tensor is a dense NHWC minibatch.
type Tensor struct {
	Data       []float64
	N, H, W, C int
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(n, h, w, c int) *Tensor {
	return &Tensor{
		Data: make([]float64, n*h*w*c),
		N:    n, H: h, W: w, C: c,
	}
}

// At returns the element at (n, y, x, c).
func (t *Tensor) At(n, y, x, c int) float64 {
	return t.Data[((n*t.H+y)*t.W+x)*t.C+c]
}

// Set writes the element at (n, y, x, c).
func (t *Tensor) Set(n, y, x, c int, v float64) {
	t.Data[((n*t.H+y)*t.W+x)*t.C+c] = v
}

// Row returns the flattened feature slice of example n.
func (t *Tensor) Row(n int) []float64 {
	stride := t.H * t.W * t.C
	return t.Data[n*stride : (n+1)*stride]
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	out := NewTensor(t.N, t.H, t.W, t.C)
	copy(out.Data, t.Data)
	return out
}

func (t *Tensor) shapeString() string {
	return fmt.Sprintf("%dx%dx%dx%d", t.N, t.H, t.W, t.C)
}

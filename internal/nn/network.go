package nn

import (
	"errors"
	"fmt"
)

// ErrShapeMismatch reports a tensor fed to a graph built for a
// different input shape.
var ErrShapeMismatch = errors.New("nn: input shape mismatch")

// Network is a named sequential graph built against a shared Input.
type Network struct {
	Name   string
	Input  *Input
	Layers []Layer
}

// New assembles a network from an input descriptor and a layer stack.
func New(name string, in *Input, layers ...Layer) *Network {
	return &Network{Name: name, Input: in, Layers: layers}
}

// Forward runs the full stack. train toggles dropout sampling.
func (n *Network) Forward(x *Tensor, train bool) (*Tensor, error) {
	if x.H != n.Input.H || x.W != n.Input.W || x.C != n.Input.C {
		return nil, fmt.Errorf("%w: got %s, graph %q expects %dx%dx%d",
			ErrShapeMismatch, x.shapeString(), n.Name, n.Input.H, n.Input.W, n.Input.C)
	}
	cur := x
	for _, l := range n.Layers {
		cur = l.Forward(cur, train)
	}
	return cur, nil
}

// Predict runs inference without mutating any layer state that
// training depends on (dropout disabled).
func (n *Network) Predict(x *Tensor) (*Tensor, error) {
	return n.Forward(x, false)
}

// Backward propagates the output gradient through the stack.
func (n *Network) Backward(grad *Tensor) {
	cur := grad
	for i := len(n.Layers) - 1; i >= 0; i-- {
		cur = n.Layers[i].Backward(cur)
	}
}

// Params returns the live parameter slices of every trainable layer.
func (n *Network) Params() [][]float64 {
	var out [][]float64
	for _, l := range n.Layers {
		if p, ok := l.(ParamLayer); ok {
			out = append(out, p.Params()...)
		}
	}
	return out
}

// Grads returns the gradient slices parallel to Params.
func (n *Network) Grads() [][]float64 {
	var out [][]float64
	for _, l := range n.Layers {
		if p, ok := l.(ParamLayer); ok {
			out = append(out, p.Grads()...)
		}
	}
	return out
}

// SnapshotParams deep-copies the current parameter values.
func (n *Network) SnapshotParams() [][]float64 {
	params := n.Params()
	out := make([][]float64, len(params))
	for i, p := range params {
		out[i] = append([]float64(nil), p...)
	}
	return out
}

// RestoreParams writes a snapshot back into the graph. The snapshot
// must have been taken from an identically shaped network.
func (n *Network) RestoreParams(snapshot [][]float64) error {
	params := n.Params()
	if len(snapshot) != len(params) {
		return fmt.Errorf("nn: snapshot has %d parameter groups, network %q has %d",
			len(snapshot), n.Name, len(params))
	}
	for i, p := range params {
		if len(snapshot[i]) != len(p) {
			return fmt.Errorf("nn: parameter group %d: snapshot len %d, network len %d",
				i, len(snapshot[i]), len(p))
		}
		copy(p, snapshot[i])
	}
	return nil
}

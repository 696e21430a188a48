package model

import (
	"fmt"
	"math/rand"

	"github.com/Juary88/keras-ensemblng/internal/nn"
)

// ConfigLayer is one entry of a declarative architecture description.
type ConfigLayer interface {
	compile(c *compiler) error
}

// Conv adds a 2D convolution followed by a ReLU unless Linear is set.
// Pad selects same-padding; otherwise the convolution is valid.
type Conv struct {
	Feats  int
	Size   int
	Stride int
	Pad    bool
	Linear bool
}

// Pool adds channelwise max pooling.
type Pool struct {
	Size   int
	Stride int
}

// Dropout adds randomized unit dropping during training.
type Dropout struct {
	Ratio float64
}

// GlobalAvgPool reduces each channel map to its spatial mean.
type GlobalAvgPool struct{}

// Softmax normalizes the readout into a probability distribution.
type Softmax struct{}

type compiler struct {
	h, w, c int
	rng     *rand.Rand
	layers  []nn.Layer
}

func (l Conv) compile(c *compiler) error {
	stride := l.Stride
	if stride <= 0 {
		stride = 1
	}
	pad := 0
	if l.Pad {
		pad = (l.Size - 1) / 2
	}
	conv := nn.NewConv2D(c.c, l.Feats, l.Size, stride, pad, c.rng)
	oh, ow := conv.OutDims(c.h, c.w)
	if oh <= 0 || ow <= 0 {
		return fmt.Errorf("conv %dx%d stride %d leaves no spatial extent at %dx%d",
			l.Size, l.Size, stride, c.h, c.w)
	}
	c.layers = append(c.layers, conv)
	if !l.Linear {
		c.layers = append(c.layers, &nn.ReLU{})
	}
	c.h, c.w, c.c = oh, ow, l.Feats
	return nil
}

func (l Pool) compile(c *compiler) error {
	stride := l.Stride
	if stride <= 0 {
		stride = l.Size
	}
	oh := (c.h-l.Size)/stride + 1
	ow := (c.w-l.Size)/stride + 1
	if oh <= 0 || ow <= 0 {
		return fmt.Errorf("pool %d stride %d leaves no spatial extent at %dx%d",
			l.Size, stride, c.h, c.w)
	}
	c.layers = append(c.layers, &nn.MaxPool{Size: l.Size, Stride: stride})
	c.h, c.w = oh, ow
	return nil
}

func (l Dropout) compile(c *compiler) error {
	c.layers = append(c.layers, nn.NewDropout(l.Ratio, c.rng))
	return nil
}

func (l GlobalAvgPool) compile(c *compiler) error {
	c.layers = append(c.layers, &nn.GlobalAvgPool{})
	c.h, c.w = 1, 1
	return nil
}

func (l Softmax) compile(c *compiler) error {
	c.layers = append(c.layers, &nn.Softmax{})
	return nil
}

func compile(name string, in *nn.Input, seed int64, specs []ConfigLayer) (*nn.Network, error) {
	if in.H != inputSide || in.W != inputSide || in.C != inputDepth {
		return nil, fmt.Errorf("%w: builder %q requires %dx%dx%d input, got %dx%dx%d",
			nn.ErrShapeMismatch, name, inputSide, inputSide, inputDepth, in.H, in.W, in.C)
	}
	c := &compiler{h: in.H, w: in.W, c: in.C, rng: rand.New(rand.NewSource(seed))}
	for _, spec := range specs {
		if err := spec.compile(c); err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
	}
	if c.c != numClasses || c.h != 1 || c.w != 1 {
		return nil, fmt.Errorf("build %s: readout is %dx%dx%d, want 1x1x%d",
			name, c.h, c.w, c.c, numClasses)
	}
	return nn.New(name, in, c.layers...), nil
}

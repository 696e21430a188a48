// Three CIFAR-10 classifier architectures sharing one input, after
// Springenberg et al. "Striving for Simplicity" and the Lin et al.
// network-in-network design.
package model

import "github.com/Juary88/keras-ensemblng/internal/nn"

const (
	inputSide  = 32
	inputDepth = 3
	numClasses = 10
)

// Builder constructs a classifier graph against the shared input.
type Builder func(in *nn.Input, seed int64) (*nn.Network, error)

// Builders lists every architecture in training order.
func Builders() []Builder {
	return []Builder{ConvPoolCNN, AllCNN, NiNCNN}
}

// ConvPoolCNN stacks 3x3 convolutions with explicit max pooling
// between stages. The 10-channel readout convolution stays linear:
// the global average must see an unconstrained readout before softmax.
func ConvPoolCNN(in *nn.Input, seed int64) (*nn.Network, error) {
	return compile("conv_pool_cnn", in, seed, []ConfigLayer{
		Conv{Feats: 96, Size: 3, Pad: true},
		Conv{Feats: 96, Size: 3, Pad: true},
		Conv{Feats: 96, Size: 3, Pad: true},
		Pool{Size: 3, Stride: 2},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 3, Pad: true},
		Pool{Size: 3, Stride: 2},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 1},
		Conv{Feats: 10, Size: 1, Linear: true},
		GlobalAvgPool{},
		Softmax{},
	})
}

// AllCNN keeps the ConvPoolCNN channel plan but pools with stride-2
// convolutions instead of pooling operators.
func AllCNN(in *nn.Input, seed int64) (*nn.Network, error) {
	return compile("all_cnn", in, seed, []ConfigLayer{
		Conv{Feats: 96, Size: 3, Pad: true},
		Conv{Feats: 96, Size: 3, Pad: true},
		Conv{Feats: 96, Size: 3, Stride: 2, Pad: true},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 3, Stride: 2, Pad: true},
		Conv{Feats: 192, Size: 3, Pad: true},
		Conv{Feats: 192, Size: 1},
		Conv{Feats: 10, Size: 1, Linear: true},
		GlobalAvgPool{},
		Softmax{},
	})
}

// NiNCNN is a shallower stack of three network-in-network blocks,
// each a wider convolution refined by 1x1 convolutions, with pooling
// and dropout after the first two blocks.
func NiNCNN(in *nn.Input, seed int64) (*nn.Network, error) {
	return compile("nin_cnn", in, seed, []ConfigLayer{
		Conv{Feats: 32, Size: 5},
		Conv{Feats: 32, Size: 1},
		Conv{Feats: 32, Size: 1},
		Pool{Size: 2},
		Dropout{Ratio: 0.5},
		Conv{Feats: 64, Size: 3},
		Conv{Feats: 64, Size: 1},
		Conv{Feats: 64, Size: 1},
		Pool{Size: 2},
		Dropout{Ratio: 0.5},
		Conv{Feats: 128, Size: 3},
		Conv{Feats: 32, Size: 1},
		Conv{Feats: 10, Size: 1, Linear: true},
		GlobalAvgPool{},
		Softmax{},
	})
}

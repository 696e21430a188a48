// Package ensemble combines trained classifiers by averaging their
// output probability vectors with equal weight.
package ensemble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Juary88/keras-ensemblng/internal/nn"
)

var (
	// ErrNoMembers reports an empty member list.
	ErrNoMembers = errors.New("ensemble: no member networks")
	// ErrInputMismatch reports a member built against a different
	// input node than the ensemble's.
	ErrInputMismatch = errors.New("ensemble: member does not share the ensemble input")
)

// Ensemble is a derived predictor with no parameters of its own. It
// is rebuilt on demand from members already holding trained weights
// and is never trained itself.
type Ensemble struct {
	members []*nn.Network
	input   *nn.Input
	name    string
}

// Average builds an equal-weight averaging ensemble. Every member
// must have been built from the identical shared input descriptor.
func Average(members []*nn.Network, shared *nn.Input) (*Ensemble, error) {
	if len(members) == 0 {
		return nil, ErrNoMembers
	}
	names := make([]string, len(members))
	for i, m := range members {
		if m.Input != shared {
			return nil, fmt.Errorf("%w: %q", ErrInputMismatch, m.Name)
		}
		names[i] = m.Name
	}
	return &Ensemble{
		members: members,
		input:   shared,
		name:    "ensemble(" + strings.Join(names, "+") + ")",
	}, nil
}

// Name identifies the ensemble by its member names.
func (e *Ensemble) Name() string { return e.name }

// Size returns the member count.
func (e *Ensemble) Size() int { return len(e.members) }

// Predict returns the elementwise arithmetic mean of the members'
// output vectors. Member parameters are never mutated.
func (e *Ensemble) Predict(x *nn.Tensor) (*nn.Tensor, error) {
	var sum *nn.Tensor
	for _, m := range e.members {
		out, err := m.Predict(x)
		if err != nil {
			return nil, fmt.Errorf("ensemble: member %q: %w", m.Name, err)
		}
		if sum == nil {
			sum = out.Clone()
			continue
		}
		for i, v := range out.Data {
			sum.Data[i] += v
		}
	}
	inv := 1 / float64(len(e.members))
	for i := range sum.Data {
		sum.Data[i] *= inv
	}
	return sum, nil
}

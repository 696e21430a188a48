package trainer

import (
	"testing"

	"github.com/Juary88/keras-ensemblng/internal/checkpoint"
	"github.com/Juary88/keras-ensemblng/internal/ensemble"
	"github.com/Juary88/keras-ensemblng/internal/model"
	"github.com/Juary88/keras-ensemblng/internal/nn"
)

// Trains every real architecture for one epoch on a small synthetic
// dataset and exercises the full train / checkpoint / reload /
// ensemble / evaluate sequence.
func TestPipelineEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("full architectures are slow in -short mode")
	}

	in := &nn.Input{H: 32, W: 32, C: 3}
	trainImages, _, trainOneHot := syntheticData(in, 10, 1)
	testImages, testLabels, _ := syntheticData(in, 6, 2)
	dir := t.TempDir()

	opts := Options{
		Epochs:          1,
		BatchSize:       4,
		ValidationSplit: 0.2,
		Seed:            3,
		CheckpointDir:   dir,
	}

	var members []*nn.Network
	var rates []float64
	for i, build := range model.Builders() {
		net, err := build(in, int64(i)+1)
		if err != nil {
			t.Fatalf("build: %v", err)
		}
		if _, err := CompileAndTrain(net, trainImages, trainOneHot, opts); err != nil {
			t.Fatalf("train %s: %v", net.Name, err)
		}
		rate, err := EvaluateError(net, in, testImages, testLabels, 4)
		if err != nil {
			t.Fatalf("evaluate %s: %v", net.Name, err)
		}
		if rate < 0 || rate > 1 {
			t.Fatalf("%s error rate out of range: %v", net.Name, rate)
		}
		members = append(members, net)
		rates = append(rates, rate)
	}

	// Rebuild the first member and reload its best checkpoint: the
	// restored graph must predict identically to the trained one.
	rebuilt, err := model.Builders()[0](in, 1)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	snap, err := checkpoint.LoadBest(dir, rebuilt.Name)
	if err != nil {
		t.Fatalf("load best: %v", err)
	}
	if err := checkpoint.Restore(rebuilt, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restoredRate, err := EvaluateError(rebuilt, in, testImages, testLabels, 4)
	if err != nil {
		t.Fatalf("evaluate restored: %v", err)
	}
	if restoredRate != rates[0] {
		t.Fatalf("restored error %v differs from original %v", restoredRate, rates[0])
	}

	pair, err := ensemble.Average([]*nn.Network{rebuilt, members[1]}, in)
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	pairRate, err := EvaluateError(pair, in, testImages, testLabels, 4)
	if err != nil {
		t.Fatalf("evaluate ensemble: %v", err)
	}
	if pairRate < 0 || pairRate > 1 {
		t.Fatalf("ensemble error rate out of range: %v", pairRate)
	}

	// Averaging a member with itself changes nothing.
	twin, err := ensemble.Average([]*nn.Network{members[2], members[2]}, in)
	if err != nil {
		t.Fatalf("ensemble: %v", err)
	}
	twinRate, err := EvaluateError(twin, in, testImages, testLabels, 4)
	if err != nil {
		t.Fatalf("evaluate ensemble: %v", err)
	}
	if twinRate != rates[2] {
		t.Fatalf("self-ensemble error %v differs from member %v", twinRate, rates[2])
	}
}

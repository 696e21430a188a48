// Package trainer drives compile-and-train runs and batched
// evaluation for classifier graphs.
package trainer

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/Juary88/keras-ensemblng/internal/checkpoint"
	"github.com/Juary88/keras-ensemblng/internal/metrics"
	"github.com/Juary88/keras-ensemblng/internal/nn"
)

// Options captures the knobs of one training run.
type Options struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearnRate       float64
	Seed            int64
	CheckpointDir   string
	LogEvery        int
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 32
	}
	if o.ValidationSplit <= 0 {
		o.ValidationSplit = 0.2
	}
	if o.LearnRate <= 0 {
		o.LearnRate = 0.001
	}
	if o.LogEvery <= 0 {
		o.LogEvery = 50
	}
}

// EpochStats is one row of the training history.
type EpochStats struct {
	Epoch   int
	Loss    float64
	Acc     float64
	ValLoss float64
	ValAcc  float64
}

// History records a run for diagnostics. It is not required for
// ensembling correctness.
type History struct {
	RunID   string
	Network string
	Epochs  []EpochStats
}

// CompileAndTrain attaches cross-entropy and Adam to the network and
// runs full passes over the training subset, holding out the last
// ValidationSplit fraction for monitoring. After every epoch the
// parameters are checkpointed when the epoch's training loss improves
// on all prior epochs for this network.
func CompileAndTrain(net *nn.Network, images, oneHot *mat.Dense, opts Options) (History, error) {
	opts.defaults()
	hist := History{RunID: uuid.NewString(), Network: net.Name}
	if opts.Epochs <= 0 {
		return hist, errors.New("trainer: epochs must be > 0")
	}
	n, p := images.Dims()
	labelRows, classes := oneHot.Dims()
	if labelRows != n {
		return hist, fmt.Errorf("trainer: %d images but %d label rows", n, labelRows)
	}
	if p != net.Input.Dims() {
		return hist, fmt.Errorf("%w: rows have %d features, graph %q expects %d",
			nn.ErrShapeMismatch, p, net.Name, net.Input.Dims())
	}

	valN := int(opts.ValidationSplit * float64(n))
	trainN := n - valN
	if trainN < opts.BatchSize {
		return hist, fmt.Errorf("trainer: %d training examples cannot fill a batch of %d", trainN, opts.BatchSize)
	}
	order := make([]int, trainN)
	for i := range order {
		order[i] = i
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	opt := nn.NewAdam(opts.LearnRate)
	var window metrics.Window
	bestLoss := 0.0

	log.Printf("train network=%s run=%s examples=%d holdout=%d", net.Name, hist.RunID, trainN, valN)

	for epoch := 1; epoch <= opts.Epochs; epoch++ {
		rng.Shuffle(trainN, func(i, j int) { order[i], order[j] = order[j], order[i] })

		lossSum := 0.0
		correct := 0
		seen := 0
		batchIdx := 0
		for start := 0; start+opts.BatchSize <= trainN; start += opts.BatchSize {
			rows := order[start : start+opts.BatchSize]

			assembleStart := time.Now()
			batch := gatherBatch(images, rows, net.Input)
			targets := gatherRows(oneHot, rows, classes)
			assembleTime := time.Since(assembleStart)

			computeStart := time.Now()
			probs, err := net.Forward(batch, true)
			if err != nil {
				return hist, err
			}
			loss, grad := nn.CrossEntropy(probs, targets)
			net.Backward(grad)
			opt.Step(net.Params(), net.Grads())
			computeTime := time.Since(computeStart)

			batchCorrect := countCorrect(probs, targets, classes)
			lossSum += loss * float64(len(rows))
			correct += batchCorrect
			seen += len(rows)

			window.Record(len(rows), assembleTime, computeTime, loss, batchCorrect)
			batchIdx++
			if batchIdx%opts.LogEvery == 0 {
				snap := window.Snapshot()
				log.Printf("network=%s epoch=%d batch=%d images_per_sec=%.1f assemble_ms=%.2f compute_ms=%.2f loss=%.4f acc=%.4f",
					net.Name, epoch, batchIdx, snap.ImagesPerSec, snap.AvgAssembleMS, snap.AvgComputeMS, snap.AvgLoss, snap.Accuracy)
			}
		}
		window.Snapshot()

		stats := EpochStats{
			Epoch: epoch,
			Loss:  lossSum / float64(seen),
			Acc:   float64(correct) / float64(seen),
		}
		if valN > 0 {
			valLoss, valAcc, err := scoreSlice(net, images, oneHot, trainN, n, opts.BatchSize, classes)
			if err != nil {
				return hist, err
			}
			stats.ValLoss, stats.ValAcc = valLoss, valAcc
		}
		hist.Epochs = append(hist.Epochs, stats)

		log.Printf("network=%s epoch=%d loss=%.4f acc=%.4f val_loss=%.4f val_acc=%.4f",
			net.Name, epoch, stats.Loss, stats.Acc, stats.ValLoss, stats.ValAcc)

		improved := epoch == 1 || stats.Loss < bestLoss
		if improved {
			bestLoss = stats.Loss
		}
		if improved && opts.CheckpointDir != "" {
			path, err := checkpoint.Save(opts.CheckpointDir, checkpoint.Snapshot{
				Network: net.Name,
				Epoch:   epoch,
				Loss:    stats.Loss,
				RunID:   hist.RunID,
				SavedAt: time.Now(),
				Params:  net.SnapshotParams(),
			})
			if err != nil {
				return hist, err
			}
			log.Printf("network=%s epoch=%d checkpoint=%s", net.Name, epoch, path)
		}
	}
	return hist, nil
}

// scoreSlice computes loss and accuracy over rows [lo, hi) in
// evaluation mode.
func scoreSlice(net *nn.Network, images, oneHot *mat.Dense, lo, hi, batchSize, classes int) (float64, float64, error) {
	lossSum := 0.0
	correct := 0
	seen := 0
	for start := lo; start < hi; start += batchSize {
		end := start + batchSize
		if end > hi {
			end = hi
		}
		rows := rangeRows(start, end)
		batch := gatherBatch(images, rows, net.Input)
		targets := gatherRows(oneHot, rows, classes)
		probs, err := net.Predict(batch)
		if err != nil {
			return 0, 0, err
		}
		loss, _ := nn.CrossEntropy(probs, targets)
		lossSum += loss * float64(len(rows))
		correct += countCorrect(probs, targets, classes)
		seen += len(rows)
	}
	return lossSum / float64(seen), float64(correct) / float64(seen), nil
}

func gatherBatch(images *mat.Dense, rows []int, in *nn.Input) *nn.Tensor {
	t := nn.NewTensor(len(rows), in.H, in.W, in.C)
	for i, r := range rows {
		copy(t.Row(i), images.RawRowView(r))
	}
	return t
}

func gatherRows(m *mat.Dense, rows []int, cols int) []float64 {
	out := make([]float64, len(rows)*cols)
	for i, r := range rows {
		copy(out[i*cols:(i+1)*cols], m.RawRowView(r))
	}
	return out
}

func rangeRows(lo, hi int) []int {
	out := make([]int, hi-lo)
	for i := range out {
		out[i] = lo + i
	}
	return out
}

func countCorrect(probs *nn.Tensor, targets []float64, classes int) int {
	correct := 0
	for i := 0; i < probs.N; i++ {
		pred := floats.MaxIdx(probs.Data[i*classes : (i+1)*classes])
		truth := floats.MaxIdx(targets[i*classes : (i+1)*classes])
		if pred == truth {
			correct++
		}
	}
	return correct
}

package metrics

import "time"

// Window accumulates throughput stats across training batches.
type Window struct {
	samples  int
	assemble time.Duration
	compute  time.Duration
	batches  int
	lossSum  float64
	correct  int
}

// Record adds one batch: time spent assembling the batch tensor,
// time spent in forward/backward/step, the batch loss, and how many
// of batchSize examples were classified correctly.
func (w *Window) Record(batchSize int, assembleTime, computeTime time.Duration, loss float64, correct int) {
	w.samples += batchSize
	w.assemble += assembleTime
	w.compute += computeTime
	w.batches++
	w.lossSum += loss
	w.correct += correct
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{}
	total := w.assemble + w.compute
	if total > 0 {
		snap.ImagesPerSec = float64(w.samples) / total.Seconds()
	}
	if w.batches > 0 {
		snap.AvgAssembleMS = (w.assemble.Seconds() * 1000) / float64(w.batches)
		snap.AvgComputeMS = (w.compute.Seconds() * 1000) / float64(w.batches)
		snap.AvgLoss = w.lossSum / float64(w.batches)
	}
	if w.samples > 0 {
		snap.Accuracy = float64(w.correct) / float64(w.samples)
	}

	*w = Window{}
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	ImagesPerSec  float64
	AvgAssembleMS float64
	AvgComputeMS  float64
	AvgLoss       float64
	Accuracy      float64
}

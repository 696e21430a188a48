package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/klauspost/cpuid/v2"

	"github.com/Juary88/keras-ensemblng/internal/checkpoint"
	"github.com/Juary88/keras-ensemblng/internal/config"
	"github.com/Juary88/keras-ensemblng/internal/dataset"
	"github.com/Juary88/keras-ensemblng/internal/ensemble"
	"github.com/Juary88/keras-ensemblng/internal/model"
	"github.com/Juary88/keras-ensemblng/internal/nn"
	"github.com/Juary88/keras-ensemblng/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults apply when empty)")
	dataDir := flag.String("data-dir", "", "Override dataset directory")
	checkpointDir := flag.String("checkpoint-dir", "", "Override checkpoint directory")
	epochs := flag.Int("epochs", 0, "Number of training epochs per network")
	batchSize := flag.Int("batch-size", 0, "Batch size")
	seed := flag.Int64("seed", 0, "PRNG seed")
	logEvery := flag.Int("log-every", 0, "Log every N batches")
	download := flag.Bool("download", false, "Fetch the CIFAR-10 archive if missing")

	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	cfg.ApplyOverrides(config.Overrides{
		DataDir:       *dataDir,
		CheckpointDir: *checkpointDir,
		Epochs:        *epochs,
		BatchSize:     *batchSize,
		Seed:          *seed,
		LogEvery:      *logEvery,
		Download:      *download,
	})

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("cpu=%q cores=%d avx2=%v avx512=%v",
		cpuid.CPU.BrandName, cpuid.CPU.LogicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512F))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Download {
		if err := dataset.Download(ctx, cfg.DataDir); err != nil {
			log.Fatalf("download dataset: %v", err)
		}
	}

	data, err := dataset.Load(cfg.DataDir)
	if err != nil {
		log.Fatalf("load dataset: %v", err)
	}
	trainRows, _ := data.TrainImages.Dims()
	testRows, _ := data.TestImages.Dims()
	log.Printf("dataset train=%d test=%d", trainRows, testRows)

	input := &nn.Input{H: dataset.Side, W: dataset.Side, C: dataset.Depth}

	opts := trainer.Options{
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		ValidationSplit: cfg.ValidationSplit,
		LearnRate:       cfg.LearnRate,
		Seed:            cfg.Seed,
		CheckpointDir:   cfg.CheckpointDir,
		LogEvery:        cfg.LogEvery,
	}

	builders := model.Builders()
	for i, build := range builders {
		net, err := build(input, cfg.Seed+int64(i))
		if err != nil {
			log.Fatalf("build network: %v", err)
		}

		if _, err := trainer.CompileAndTrain(net, data.TrainImages, data.TrainOneHot, opts); err != nil {
			log.Fatalf("train %s: %v", net.Name, err)
		}

		rate, err := trainer.EvaluateError(net, input, data.TestImages, data.TestLabels, cfg.BatchSize)
		if err != nil {
			log.Fatalf("evaluate %s: %v", net.Name, err)
		}
		log.Printf("model=%s error=%.4f", net.Name, rate)
	}

	// Rebuild each member fresh and reload its best checkpoint so the
	// ensembles are formed from loaded-for-inference graphs.
	members := make([]*nn.Network, len(builders))
	for i, build := range builders {
		net, err := build(input, cfg.Seed+int64(i))
		if err != nil {
			log.Fatalf("rebuild network: %v", err)
		}
		snap, err := checkpoint.LoadBest(cfg.CheckpointDir, net.Name)
		if err != nil {
			log.Fatalf("load checkpoint for %s: %v", net.Name, err)
		}
		if err := checkpoint.Restore(net, snap); err != nil {
			log.Fatalf("restore %s: %v", net.Name, err)
		}
		log.Printf("restored network=%s epoch=%d loss=%.4f", net.Name, snap.Epoch, snap.Loss)
		members[i] = net
	}

	for _, subset := range memberSubsets(len(members)) {
		picked := make([]*nn.Network, len(subset))
		for i, idx := range subset {
			picked[i] = members[idx]
		}
		ens, err := ensemble.Average(picked, input)
		if err != nil {
			log.Fatalf("build ensemble: %v", err)
		}
		rate, err := trainer.EvaluateError(ens, input, data.TestImages, data.TestLabels, cfg.BatchSize)
		if err != nil {
			log.Fatalf("evaluate %s: %v", ens.Name(), err)
		}
		log.Printf("model=%s error=%.4f", ens.Name(), rate)
	}
}

// memberSubsets lists every subset of size >= 2 in evaluation order:
// pairs first, then the full set.
func memberSubsets(n int) [][]int {
	var pairs, all [][]int
	full := make([]int, n)
	for i := 0; i < n; i++ {
		full[i] = i
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, []int{i, j})
		}
	}
	all = append(all, pairs...)
	if n > 2 {
		all = append(all, full)
	}
	return all
}

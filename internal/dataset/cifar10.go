// Package dataset loads the CIFAR-10 binary benchmark into gonum
// matrices with pixels normalized to [0,1].
package dataset

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const (
	// Side and Depth describe one CIFAR-10 image; Classes the label space.
	Side    = 32
	Depth   = 3
	Classes = 10

	pixelCount = Side * Side * Depth
	recordSize = 1 + pixelCount

	trainPerBatch = 10000
	testCount     = 10000
)

var trainBatches = []string{
	"data_batch_1.bin",
	"data_batch_2.bin",
	"data_batch_3.bin",
	"data_batch_4.bin",
	"data_batch_5.bin",
}

const testBatch = "test_batch.bin"

// Split is the fixed train/test partition of the corpus. Images are
// row-major NxP matrices with P = 32*32*3 in HWC order; labels are
// class indices; TrainOneHot has exactly one 1 per row.
type Split struct {
	TrainImages *mat.Dense
	TrainLabels []int
	TrainOneHot *mat.Dense
	TestImages  *mat.Dense
	TestLabels  []int
}

// Load reads the six CIFAR-10 binary batch files beneath dir. The
// load is one-shot: any missing or malformed file aborts it.
func Load(dir string) (*Split, error) {
	root, err := resolveRoot(dir)
	if err != nil {
		return nil, err
	}

	trainImages := mat.NewDense(len(trainBatches)*trainPerBatch, pixelCount, nil)
	trainLabels := make([]int, 0, len(trainBatches)*trainPerBatch)
	for i, name := range trainBatches {
		labels, err := readBatch(filepath.Join(root, name), trainImages, i*trainPerBatch, trainPerBatch)
		if err != nil {
			return nil, err
		}
		trainLabels = append(trainLabels, labels...)
	}

	testImages := mat.NewDense(testCount, pixelCount, nil)
	testLabels, err := readBatch(filepath.Join(root, testBatch), testImages, 0, testCount)
	if err != nil {
		return nil, err
	}

	return &Split{
		TrainImages: trainImages,
		TrainLabels: trainLabels,
		TrainOneHot: OneHot(trainLabels, Classes),
		TestImages:  testImages,
		TestLabels:  testLabels,
	}, nil
}

// OneHot encodes labels as an NxClasses matrix with one 1 per row.
func OneHot(labels []int, classes int) *mat.Dense {
	out := mat.NewDense(len(labels), classes, nil)
	for i, l := range labels {
		out.Set(i, l, 1)
	}
	return out
}

func resolveRoot(dir string) (string, error) {
	candidates := []string{dir, filepath.Join(dir, "cifar-10-batches-bin")}
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(c, trainBatches[0])); err == nil {
			return c, nil
		}
	}
	return "", fmt.Errorf("dataset: no CIFAR-10 batch files under %s", dir)
}

func readBatch(path string, images *mat.Dense, rowOff, want int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	defer f.Close()

	labels, err := decodeRecords(bufio.NewReaderSize(f, 1<<16), images, rowOff, want)
	if err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", filepath.Base(path), err)
	}
	return labels, nil
}

// decodeRecords reads exactly want records into rows [rowOff,
// rowOff+want) of images. Each record is a label byte followed by
// 3072 pixel bytes in CHW plane order; rows come out HWC in [0,1].
func decodeRecords(r io.Reader, images *mat.Dense, rowOff, want int) ([]int, error) {
	record := make([]byte, recordSize)
	labels := make([]int, 0, want)
	for i := 0; i < want; i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		label := int(record[0])
		if label >= Classes {
			return nil, fmt.Errorf("record %d: label %d out of range", i, label)
		}
		dst := images.RawRowView(rowOff + i)
		for y := 0; y < Side; y++ {
			for x := 0; x < Side; x++ {
				for c := 0; c < Depth; c++ {
					dst[(y*Side+x)*Depth+c] = float64(record[1+c*Side*Side+y*Side+x]) / 255
				}
			}
		}
		labels = append(labels, label)
	}
	return labels, nil
}

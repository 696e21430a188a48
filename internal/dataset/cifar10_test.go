package dataset

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func makeRecord(label byte, fill byte) []byte {
	rec := make([]byte, recordSize)
	rec[0] = label
	for i := 1; i < recordSize; i++ {
		rec[i] = fill
	}
	return rec
}

func TestDecodeRecordsLayoutAndRange(t *testing.T) {
	rec := makeRecord(3, 0)
	// Pixel (y=1, x=2): red 255, green 128, blue 0.
	rec[1+0*Side*Side+1*Side+2] = 255
	rec[1+1*Side*Side+1*Side+2] = 128

	images := mat.NewDense(1, pixelCount, nil)
	labels, err := decodeRecords(bytes.NewReader(rec), images, 0, 1)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(labels) != 1 || labels[0] != 3 {
		t.Fatalf("labels=%v, want [3]", labels)
	}

	row := images.RawRowView(0)
	base := (1*Side + 2) * Depth
	if row[base] != 1 {
		t.Fatalf("red channel %v, want 1", row[base])
	}
	if math.Abs(row[base+1]-128.0/255.0) > 1e-12 {
		t.Fatalf("green channel %v, want 128/255", row[base+1])
	}
	if row[base+2] != 0 {
		t.Fatalf("blue channel %v, want 0", row[base+2])
	}
	for _, v := range row {
		if v < 0 || v > 1 {
			t.Fatalf("pixel out of [0,1]: %v", v)
		}
	}
}

func TestDecodeRecordsRejectsBadLabel(t *testing.T) {
	rec := makeRecord(10, 0)
	images := mat.NewDense(1, pixelCount, nil)
	if _, err := decodeRecords(bytes.NewReader(rec), images, 0, 1); err == nil {
		t.Fatal("expected out-of-range label error")
	}
}

func TestDecodeRecordsRejectsTruncatedFile(t *testing.T) {
	rec := makeRecord(1, 7)
	images := mat.NewDense(2, pixelCount, nil)
	if _, err := decodeRecords(bytes.NewReader(rec), images, 0, 2); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestReadBatchFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data_batch_1.bin")
	data := append(makeRecord(0, 1), makeRecord(9, 255)...)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	images := mat.NewDense(2, pixelCount, nil)
	labels, err := readBatch(path, images, 0, 2)
	if err != nil {
		t.Fatalf("readBatch: %v", err)
	}
	if labels[0] != 0 || labels[1] != 9 {
		t.Fatalf("labels=%v, want [0 9]", labels)
	}
	if images.At(1, 0) != 1 {
		t.Fatalf("255 byte should normalize to 1, got %v", images.At(1, 0))
	}
}

func TestOneHotExactlyOne(t *testing.T) {
	labels := []int{0, 4, 9}
	oh := OneHot(labels, Classes)
	for i, l := range labels {
		sum := 0.0
		for c := 0; c < Classes; c++ {
			sum += oh.At(i, c)
		}
		if sum != 1 {
			t.Fatalf("row %d sums to %v", i, sum)
		}
		if oh.At(i, l) != 1 {
			t.Fatalf("row %d: class %d not set", i, l)
		}
	}
}

func TestLoadMissingDir(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nothing-here")); err == nil {
		t.Fatal("expected error for missing dataset")
	}
}

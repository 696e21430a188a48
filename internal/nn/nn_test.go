package nn

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestConv2DOutputDims(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	same := NewConv2D(3, 8, 3, 1, 1, rng)
	if oh, ow := same.OutDims(32, 32); oh != 32 || ow != 32 {
		t.Fatalf("same padding: got %dx%d, want 32x32", oh, ow)
	}
	valid := NewConv2D(3, 8, 5, 1, 0, rng)
	if oh, ow := valid.OutDims(32, 32); oh != 28 || ow != 28 {
		t.Fatalf("valid: got %dx%d, want 28x28", oh, ow)
	}
	strided := NewConv2D(3, 8, 3, 2, 1, rng)
	if oh, ow := strided.OutDims(32, 32); oh != 16 || ow != 16 {
		t.Fatalf("strided: got %dx%d, want 16x16", oh, ow)
	}
}

func TestConv2DKnownValue(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	conv := NewConv2D(1, 1, 2, 1, 0, rng)
	w := conv.Params()[0]
	for i := range w {
		w[i] = 1
	}
	bias := conv.Params()[1]
	bias[0] = 0.5

	x := NewTensor(1, 3, 3, 1)
	for i := range x.Data {
		x.Data[i] = float64(i) // 0..8 row-major
	}
	out := conv.Forward(x, false)
	if out.H != 2 || out.W != 2 {
		t.Fatalf("output is %dx%d, want 2x2", out.H, out.W)
	}
	// Window at (0,0) sums 0+1+3+4 plus bias.
	if got := out.At(0, 0, 0, 0); math.Abs(got-8.5) > 1e-12 {
		t.Fatalf("corner value %v, want 8.5", got)
	}
	if got := out.At(0, 1, 1, 0); math.Abs(got-(4+5+7+8+0.5)) > 1e-12 {
		t.Fatalf("bottom-right value %v, want 24.5", got)
	}
}

func TestConv2DGradientMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	conv := NewConv2D(1, 2, 2, 1, 0, rng)
	x := NewTensor(1, 3, 3, 1)
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64()
	}

	// Loss = sum of outputs; its gradient is all ones.
	sumOut := func() float64 {
		out := conv.Forward(x, true)
		s := 0.0
		for _, v := range out.Data {
			s += v
		}
		return s
	}
	base := conv.Forward(x, true)
	ones := NewTensor(base.N, base.H, base.W, base.C)
	for i := range ones.Data {
		ones.Data[i] = 1
	}
	conv.Backward(ones)
	analytic := append([]float64(nil), conv.Grads()[0]...)

	const h = 1e-6
	w := conv.Params()[0]
	for i := range w {
		orig := w[i]
		w[i] = orig + h
		up := sumOut()
		w[i] = orig - h
		down := sumOut()
		w[i] = orig
		numeric := (up - down) / (2 * h)
		if math.Abs(numeric-analytic[i]) > 1e-5 {
			t.Fatalf("weight %d: numeric grad %v, analytic %v", i, numeric, analytic[i])
		}
	}
}

func TestMaxPoolForwardBackward(t *testing.T) {
	pool := &MaxPool{Size: 2, Stride: 2}
	x := NewTensor(1, 4, 4, 1)
	for i := range x.Data {
		x.Data[i] = float64(i)
	}
	out := pool.Forward(x, true)
	if out.H != 2 || out.W != 2 {
		t.Fatalf("output is %dx%d, want 2x2", out.H, out.W)
	}
	// Max of each 2x2 window is its bottom-right element.
	want := []float64{5, 7, 13, 15}
	for i, w := range want {
		if out.Data[i] != w {
			t.Fatalf("pooled[%d]=%v, want %v", i, out.Data[i], w)
		}
	}

	grad := NewTensor(1, 2, 2, 1)
	for i := range grad.Data {
		grad.Data[i] = float64(i + 1)
	}
	dx := pool.Backward(grad)
	for i, w := range want {
		if dx.Data[int(w)] != float64(i+1) {
			t.Fatalf("gradient did not route to argmax %v", w)
		}
	}
	sum := 0.0
	for _, v := range dx.Data {
		sum += v
	}
	if sum != 1+2+3+4 {
		t.Fatalf("gradient mass %v, want 10", sum)
	}
}

func TestGlobalAvgPool(t *testing.T) {
	gap := &GlobalAvgPool{}
	x := NewTensor(1, 2, 2, 2)
	// Channel 0 holds 1,2,3,4; channel 1 holds 10,20,30,40.
	vals := [][2]float64{{1, 10}, {2, 20}, {3, 30}, {4, 40}}
	for i, v := range vals {
		x.Data[i*2] = v[0]
		x.Data[i*2+1] = v[1]
	}
	out := gap.Forward(x, false)
	if out.H != 1 || out.W != 1 || out.C != 2 {
		t.Fatalf("unexpected shape %dx%dx%d", out.H, out.W, out.C)
	}
	if math.Abs(out.Data[0]-2.5) > 1e-12 || math.Abs(out.Data[1]-25) > 1e-12 {
		t.Fatalf("means %v, want [2.5 25]", out.Data)
	}

	grad := NewTensor(1, 1, 1, 2)
	grad.Data[0], grad.Data[1] = 4, 8
	dx := gap.Backward(grad)
	if dx.Data[0] != 1 || dx.Data[1] != 2 {
		t.Fatalf("backward did not spread evenly: %v", dx.Data[:2])
	}
}

func TestSoftmaxNormalizes(t *testing.T) {
	sm := &Softmax{}
	x := NewTensor(2, 1, 1, 10)
	rng := rand.New(rand.NewSource(3))
	for i := range x.Data {
		x.Data[i] = rng.NormFloat64() * 5
	}
	out := sm.Forward(x, false)
	for n := 0; n < 2; n++ {
		sum := 0.0
		for c := 0; c < 10; c++ {
			v := out.At(n, 0, 0, c)
			if v < 0 || v > 1 {
				t.Fatalf("probability out of range: %v", v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("row %d sums to %v", n, sum)
		}
	}
}

func TestDropoutEvalIsIdentity(t *testing.T) {
	drop := NewDropout(0.5, rand.New(rand.NewSource(5)))
	x := NewTensor(1, 2, 2, 3)
	for i := range x.Data {
		x.Data[i] = float64(i) + 1
	}
	out := drop.Forward(x, false)
	for i := range x.Data {
		if out.Data[i] != x.Data[i] {
			t.Fatalf("eval mode changed element %d", i)
		}
	}
}

func TestNetworkShapeMismatch(t *testing.T) {
	in := &Input{H: 4, W: 4, C: 3}
	rng := rand.New(rand.NewSource(2))
	net := New("tiny", in,
		NewConv2D(3, 10, 1, 1, 0, rng),
		&GlobalAvgPool{},
		&Softmax{},
	)
	bad := NewTensor(1, 5, 5, 3)
	if _, err := net.Forward(bad, false); !errors.Is(err, ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
}

func TestTrainStepReducesLoss(t *testing.T) {
	in := &Input{H: 4, W: 4, C: 3}
	rng := rand.New(rand.NewSource(11))
	net := New("tiny", in,
		NewConv2D(3, 10, 1, 1, 0, rng),
		&ReLU{},
		NewConv2D(10, 10, 1, 1, 0, rng),
		&GlobalAvgPool{},
		&Softmax{},
	)
	batch := NewTensor(4, 4, 4, 3)
	for i := range batch.Data {
		batch.Data[i] = rng.Float64()
	}
	oneHot := make([]float64, 4*10)
	for i := 0; i < 4; i++ {
		oneHot[i*10+(i*3)%10] = 1
	}

	opt := NewAdam(0.01)
	first := -1.0
	last := 0.0
	for step := 0; step < 30; step++ {
		probs, err := net.Forward(batch, true)
		if err != nil {
			t.Fatalf("forward: %v", err)
		}
		loss, grad := CrossEntropy(probs, oneHot)
		if first < 0 {
			first = loss
		}
		last = loss
		net.Backward(grad)
		opt.Step(net.Params(), net.Grads())
	}
	if last >= first {
		t.Fatalf("loss did not decrease: first=%f last=%f", first, last)
	}
}

func TestSnapshotRestoreRoundtrip(t *testing.T) {
	in := &Input{H: 4, W: 4, C: 3}
	build := func(seed int64) *Network {
		rng := rand.New(rand.NewSource(seed))
		return New("tiny", in,
			NewConv2D(3, 10, 1, 1, 0, rng),
			&GlobalAvgPool{},
			&Softmax{},
		)
	}
	a := build(1)
	snap := a.SnapshotParams()

	b := build(99)
	if err := b.RestoreParams(snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	x := NewTensor(2, 4, 4, 3)
	rng := rand.New(rand.NewSource(8))
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	pa, err := a.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	pb, err := b.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i := range pa.Data {
		if pa.Data[i] != pb.Data[i] {
			t.Fatalf("restored network diverges at %d: %v vs %v", i, pa.Data[i], pb.Data[i])
		}
	}

	if err := b.RestoreParams(snap[:1]); err == nil {
		t.Fatal("expected error for truncated snapshot")
	}
}

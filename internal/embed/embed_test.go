package embed

import (
	"context"
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical vectors", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite vectors", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal vectors", []float32{1, 0}, []float32{0, 1}, 0},
		{"mismatched lengths", []float32{1, 2}, []float32{1, 2, 3}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 2}, 0},
		{"both empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cosine(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Cosine() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineScaleInvariant(t *testing.T) {
	a := []float32{0.3, -0.8, 0.5}
	scaled := []float32{0.6, -1.6, 1.0}
	if got := Cosine(a, scaled); math.Abs(got-1) > 1e-6 {
		t.Errorf("Cosine of scaled vector = %v, want 1", got)
	}
}

func TestMean(t *testing.T) {
	got := Mean([][]float32{{1, 2}, {3, 4}})
	want := []float32{2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Mean() = %v, want %v", got, want)
		}
	}
}

func TestMeanEmpty(t *testing.T) {
	if got := Mean(nil); got != nil {
		t.Errorf("Mean(nil) = %v, want nil", got)
	}
}

func TestStaticEmbedderDeterministic(t *testing.T) {
	e := &StaticEmbedder{Dim: 64}
	ctx := context.Background()

	a1, err := e.Embed(ctx, "def foo(): pass")
	if err != nil {
		t.Fatal(err)
	}
	a2, _ := e.Embed(ctx, "def foo(): pass")
	b, _ := e.Embed(ctx, "def bar(): return 42")

	if len(a1) != 64 {
		t.Fatalf("dimension = %d, want 64", len(a1))
	}
	if Cosine(a1, a2) != 1 {
		t.Error("identical text should produce identical vectors")
	}
	if Cosine(a1, b) > 0.99 {
		t.Error("different text should produce different vectors")
	}
}

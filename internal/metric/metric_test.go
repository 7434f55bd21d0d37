package metric

import (
	"math"
	"testing"
)

func TestEvaluate(t *testing.T) {
	ref := [][]float32{{1, 2, 3, 4}}
	float := [][]float32{{1, 2, 3, 4}}

	tests := []struct {
		name string
		kind Kind
		want float64
	}{
		{"euclidean identical", Euclidean, 0},
		{"sqdiff identical", SqDiff, 0},
		{"manhattan identical", Manhattan, 0},
		{"correlation identical", Correlation, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.kind.Evaluate(ref, float)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateSkipsNaN(t *testing.T) {
	ref := [][]float32{{1, float32(math.NaN()), 3}}
	float := [][]float32{{1, 5, 3}}

	got := Euclidean.Evaluate(ref, float)
	if got != 0 {
		t.Errorf("Evaluate() = %v, want 0 (NaN sample skipped)", got)
	}
}

func TestEvaluateAllNaN(t *testing.T) {
	ref := [][]float32{{float32(math.NaN())}}
	float := [][]float32{{float32(math.NaN())}}
	got := Euclidean.Evaluate(ref, float)
	if !math.IsNaN(got) {
		t.Errorf("Evaluate() = %v, want NaN", got)
	}
}

func TestFindMin(t *testing.T) {
	if !Euclidean.FindMin() || !SqDiff.FindMin() || !Manhattan.FindMin() {
		t.Error("Euclidean, SqDiff, Manhattan should minimise")
	}
	if Correlation.FindMin() {
		t.Error("Correlation should maximise")
	}
}

func TestBetter(t *testing.T) {
	if !Euclidean.Better(1, 2) {
		t.Error("for a minimising metric, 1 should be better than 2")
	}
	if Euclidean.Better(2, 1) {
		t.Error("for a minimising metric, 2 should not be better than 1")
	}
	if !Correlation.Better(0.9, 0.5) {
		t.Error("for a maximising metric, 0.9 should be better than 0.5")
	}
	if !Euclidean.Better(1, math.NaN()) {
		t.Error("any real value should be better than NaN current")
	}
	if Euclidean.Better(math.NaN(), 1) {
		t.Error("NaN candidate should never be better")
	}
}

func TestPassesThreshold(t *testing.T) {
	if !Euclidean.PassesThreshold(0.5, 1.0) {
		t.Error("0.5 should pass a minimising threshold of 1.0")
	}
	if Euclidean.PassesThreshold(1.5, 1.0) {
		t.Error("1.5 should fail a minimising threshold of 1.0")
	}
	if !Correlation.PassesThreshold(0.95, 0.9) {
		t.Error("0.95 should pass a maximising threshold of 0.9")
	}
	if Correlation.PassesThreshold(0.8, 0.9) {
		t.Error("0.8 should fail a maximising threshold of 0.9")
	}
	if Euclidean.PassesThreshold(math.NaN(), 1.0) {
		t.Error("NaN should never pass a threshold")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"euclidean", Euclidean},
		{"sqdiff", SqDiff},
		{"manhatten", Manhattan},
		{"correlation", Correlation},
	}
	for _, tt := range tests {
		got, err := Parse(tt.in)
		if err != nil {
			t.Fatalf("Parse(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := Parse("bogus"); err == nil {
		t.Error("Parse(\"bogus\") should return an error")
	}
}

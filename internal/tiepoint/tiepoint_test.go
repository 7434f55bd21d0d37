package tiepoint

import (
	"math"
	"testing"
)

func TestFinalize(t *testing.T) {
	p := NewSeed(100, 200, 10, 20)
	p.XShift, p.YShift = 0.5, -0.25
	p.Metric = 0.9
	p.Finalize()

	if p.XFloat != 9.5 || p.YFloat != 20.25 {
		t.Errorf("Finalize() -> (%v,%v), want (9.5,20.25)", p.XFloat, p.YFloat)
	}
}

func TestRetained(t *testing.T) {
	good := NewSeed(0, 0, 5, 5)
	good.Metric = 0.5
	good.XFloat, good.YFloat = 5, 5
	if !good.Retained(10, 10) {
		t.Error("in-bounds point with real metric should be retained")
	}

	nanMetric := good
	nanMetric.Metric = math.NaN()
	if nanMetric.Retained(10, 10) {
		t.Error("NaN-metric point should not be retained")
	}

	outOfBounds := good
	outOfBounds.XFloat = 20
	if outOfBounds.Retained(10, 10) {
		t.Error("out-of-bounds point should not be retained")
	}
}

func TestBuildNodes(t *testing.T) {
	points := []TiePoint{
		NewSeed(0, 0, 0, 0),
		NewSeed(0, 0, 1, 0),
		NewSeed(0, 0, 100, 0),
	}
	nodes := BuildNodes(points, 5)
	if len(nodes[0].Neighbors) != 1 || nodes[0].Neighbors[0] != 1 {
		t.Errorf("node 0 neighbors = %v, want [1]", nodes[0].Neighbors)
	}
	if len(nodes[2].Neighbors) != 0 {
		t.Errorf("node 2 neighbors = %v, want []", nodes[2].Neighbors)
	}
}

func TestEqual(t *testing.T) {
	a := NewSeed(1, 1, 5, 5)
	b := NewSeed(9, 9, 5, 5)
	if !a.Equal(b) {
		t.Error("tie points with the same (XRef,YRef) should be equal regardless of other fields")
	}
}

package config

import (
	"testing"

	"github.com/surveyforge/imgreg/internal/metric"
)

func TestThresholdPointerUnsetIsNil(t *testing.T) {
	fs, r := NewRegistrationFlagSet("basic")
	if err := fs.Parse([]string{"-reference", "a.tif", "-floating", "b.tif"}); err != nil {
		t.Fatal(err)
	}
	if r.ThresholdPointer(fs) != nil {
		t.Error("ThresholdPointer should be nil when -threshold was not given")
	}
}

func TestThresholdPointerSet(t *testing.T) {
	fs, r := NewRegistrationFlagSet("basic")
	if err := fs.Parse([]string{"-threshold", "0.85"}); err != nil {
		t.Fatal(err)
	}
	p := r.ThresholdPointer(fs)
	if p == nil || *p != 0.85 {
		t.Errorf("ThresholdPointer = %v, want pointer to 0.85", p)
	}
}

func TestMatchParamsDefaults(t *testing.T) {
	fs, r := NewRegistrationFlagSet("basic")
	if err := fs.Parse(nil); err != nil {
		t.Fatal(err)
	}
	p, err := r.MatchParams(fs)
	if err != nil {
		t.Fatalf("MatchParams() error = %v", err)
	}
	if p.HalfWindow != 9 || p.HalfSearch != 4 || p.SubpixelResolution != 8 {
		t.Errorf("defaults = W%d S%d R%d, want W9 S4 R8", p.HalfWindow, p.HalfSearch, p.SubpixelResolution)
	}
	if p.Metric != metric.Correlation {
		t.Errorf("default metric = %v, want correlation", p.Metric)
	}
}

func TestRequireRasterFlags(t *testing.T) {
	fs, r := NewRegistrationFlagSet("basic")
	if err := fs.Parse([]string{"-reference", "a.tif"}); err != nil {
		t.Fatal(err)
	}
	if err := r.RequireRasterFlags(); err == nil {
		t.Error("RequireRasterFlags should fail without -floating and -output")
	}
}

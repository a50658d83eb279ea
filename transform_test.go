package phrames

import (
	"math"
	"testing"
)

func TestAutoFitCoversCanvas(t *testing.T) {
	sizes := [][2]int{
		{1, 1}, {400, 400}, {2000, 1000}, {1000, 2000}, {399, 401},
		{4032, 3024}, {3, 7919}, {7919, 3}, {640, 480}, {1080, 1920},
	}
	for _, sz := range sizes {
		w, h := sz[0], sz[1]
		tr := AutoFit(w, h, PreviewSize)
		if tr.X != 0 || tr.Y != 0 {
			t.Errorf("AutoFit(%d, %d) offset = (%v, %v), want (0, 0)", w, h, tr.X, tr.Y)
		}
		if tr.Scale*float64(w) < PreviewSize-1e-9 || tr.Scale*float64(h) < PreviewSize-1e-9 {
			t.Errorf("AutoFit(%d, %d).Scale = %v leaves a gap (%.3f x %.3f)",
				w, h, tr.Scale, tr.Scale*float64(w), tr.Scale*float64(h))
		}
	}
}

func TestAutoFitSmallPhotoIsNotClamped(t *testing.T) {
	tr := AutoFit(60, 60, PreviewSize)
	if want := 400.0 / 60.0; math.Abs(tr.Scale-want) > 1e-12 {
		t.Errorf("AutoFit(60, 60).Scale = %v, want %v", tr.Scale, want)
	}
	if tr.Scale*60 < PreviewSize-1e-9 {
		t.Errorf("AutoFit(60, 60) covers %v px, want >= %d", tr.Scale*60, PreviewSize)
	}
}

func TestAutoFitLimitingDimension(t *testing.T) {
	tr := AutoFit(2000, 1000, PreviewSize)
	if math.Abs(tr.Scale-0.4) > 1e-12 {
		t.Errorf("AutoFit(2000, 1000).Scale = %v, want 0.4", tr.Scale)
	}
	tr = AutoFit(300, 600, PreviewSize)
	if math.Abs(tr.Scale-400.0/300.0) > 1e-12 {
		t.Errorf("AutoFit(300, 600).Scale = %v, want %v", tr.Scale, 400.0/300.0)
	}
}

func TestAutoFitDegenerate(t *testing.T) {
	for _, tc := range [][2]int{{0, 10}, {10, 0}, {-1, 5}} {
		if got := AutoFit(tc[0], tc[1], PreviewSize); got != (Transform{Scale: 1}) {
			t.Errorf("AutoFit(%d, %d) = %+v, want scale 1", tc[0], tc[1], got)
		}
	}
}

func TestZoomClamp(t *testing.T) {
	tests := []struct {
		name  string
		start float64
		delta float64
		want  float64
	}{
		{"below minimum", 0.15, -1.0, MinScale},
		{"above maximum", 4.95, 1.0, MaxScale},
		{"within range", 1.0, 0.1, 1.1},
		{"exact minimum", 0.2, -0.1, 0.1},
		{"huge negative", 2, -1e9, MinScale},
		{"huge positive", 2, 1e9, MaxScale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Zoom(Transform{Scale: tt.start}, tt.delta)
			if math.Abs(got.Scale-tt.want) > 1e-9 {
				t.Errorf("Zoom(%v, %v).Scale = %v, want %v", tt.start, tt.delta, got.Scale, tt.want)
			}
		})
	}
}

func TestZoomRepeatedStaysInRange(t *testing.T) {
	tr := Transform{Scale: 1}
	deltas := []float64{0.7, -3, 2.5, 9, -0.05, -12, 0.3, 4.4, -0.1, 1e3}
	for i := 0; i < 200; i++ {
		tr = Zoom(tr, deltas[i%len(deltas)])
		if tr.Scale < MinScale || tr.Scale > MaxScale {
			t.Fatalf("step %d: scale %v out of range", i, tr.Scale)
		}
	}
}

func TestZoomKeepsOffset(t *testing.T) {
	got := Zoom(Transform{X: 12, Y: -7, Scale: 1}, 0.5)
	if got.X != 12 || got.Y != -7 {
		t.Errorf("Zoom changed offset to (%v, %v)", got.X, got.Y)
	}
}

func TestPanInvertible(t *testing.T) {
	start := []Transform{
		{X: 0, Y: 0, Scale: 1},
		{X: 13.5, Y: -200, Scale: 0.4},
		{X: -1e4, Y: 1e4, Scale: 5},
	}
	for _, tr := range start {
		got := Pan(Pan(tr, 5, 5), -5, -5)
		if !got.Equal(tr, 1e-9) {
			t.Errorf("Pan round trip of %+v = %+v", tr, got)
		}
	}
}

func TestPanUnbounded(t *testing.T) {
	got := Pan(Transform{Scale: 1}, 5000, -5000)
	if got.X != 5000 || got.Y != -5000 || got.Scale != 1 {
		t.Errorf("Pan = %+v, want {5000 -5000 1}", got)
	}
}

func TestSlider(t *testing.T) {
	tests := []struct {
		value int
		want  float64
	}{
		{100, 1},
		{10, 0.1},
		{500, 5},
		{250, 2.5},
		{0, MinScale},
		{900, MaxScale},
	}
	for _, tt := range tests {
		got := FromSlider(Transform{X: 3, Scale: 1}, tt.value)
		if math.Abs(got.Scale-tt.want) > 1e-9 || got.X != 3 {
			t.Errorf("FromSlider(%d) = %+v, want scale %v", tt.value, got, tt.want)
		}
	}

	if v := SliderValue(Transform{Scale: 0.4}); v != 40 {
		t.Errorf("SliderValue(0.4) = %d, want 40", v)
	}
	if v := SliderValue(Transform{Scale: 0.01}); v != SliderMin {
		t.Errorf("SliderValue(0.01) = %d, want %d", v, SliderMin)
	}
}

func TestClampNaN(t *testing.T) {
	got := Transform{Scale: math.NaN()}.Clamp()
	if got.Scale != 1 {
		t.Errorf("Clamp(NaN).Scale = %v, want 1", got.Scale)
	}
}

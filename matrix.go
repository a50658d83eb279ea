package phrames

import "golang.org/x/image/math/f64"

// Matrix represents a 2D affine transformation matrix.
// It uses a 2x3 matrix in row-major order:
//
//	| a  b  c |
//	| d  e  f |
//
// This represents the transformation:
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
//
// The compositor only ever builds translations and uniform scales, so B and
// D stay zero in practice, but the arithmetic is general.
type Matrix struct {
	A, B, C float64
	D, E, F float64
}

// Identity returns the identity transformation matrix.
func Identity() Matrix {
	return Matrix{
		A: 1, B: 0, C: 0,
		D: 0, E: 1, F: 0,
	}
}

// Translate creates a translation matrix.
func Translate(x, y float64) Matrix {
	return Matrix{
		A: 1, B: 0, C: x,
		D: 0, E: 1, F: y,
	}
}

// Scale creates a scaling matrix.
func Scale(x, y float64) Matrix {
	return Matrix{
		A: x, B: 0, C: 0,
		D: 0, E: y, F: 0,
	}
}

// Multiply multiplies two matrices (m * other).
// The result applies other first, then m.
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		A: m.A*other.A + m.B*other.D,
		B: m.A*other.B + m.B*other.E,
		C: m.A*other.C + m.B*other.F + m.C,
		D: m.D*other.A + m.E*other.D,
		E: m.D*other.B + m.E*other.E,
		F: m.D*other.C + m.E*other.F + m.F,
	}
}

// TransformPoint applies the transformation to a point.
func (m Matrix) TransformPoint(p Point) Point {
	return Point{
		X: m.A*p.X + m.B*p.Y + m.C,
		Y: m.D*p.X + m.E*p.Y + m.F,
	}
}

// TransformRect maps the corners of r and returns their bounding box.
func (m Matrix) TransformRect(r Rect) Rect {
	p0 := m.TransformPoint(r.Min)
	p1 := m.TransformPoint(Point{X: r.Max.X, Y: r.Min.Y})
	p2 := m.TransformPoint(r.Max)
	p3 := m.TransformPoint(Point{X: r.Min.X, Y: r.Max.Y})
	return Rect{
		Min: Point{X: min(p0.X, p1.X, p2.X, p3.X), Y: min(p0.Y, p1.Y, p2.Y, p3.Y)},
		Max: Point{X: max(p0.X, p1.X, p2.X, p3.X), Y: max(p0.Y, p1.Y, p2.Y, p3.Y)},
	}
}

// Aff3 converts m to the source-to-destination form used by
// golang.org/x/image/draw.Transformer.
func (m Matrix) Aff3() f64.Aff3 {
	return f64.Aff3{m.A, m.B, m.C, m.D, m.E, m.F}
}

package mpu9250

import (
	"math"

	"github.com/skelterjohn/go.matrix"
)

// OrientationFromMatrix converts a 3x3 chip mounting matrix into the form DmpSetOrientation
// takes. The matrix must be a signed permutation: every entry -1, 0 or 1 and M*Mt = I.
func OrientationFromMatrix(m *matrix.DenseMatrix) ([9]int8, error) {
	var out [9]int8
	if m == nil || m.Rows() != 3 || m.Cols() != 3 {
		return out, rejected("mounting matrix must be 3x3")
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := m.Get(i, j)
			switch v {
			case -1, 0, 1:
				out[3*i+j] = int8(v)
			default:
				return out, rejected("mounting matrix entry (%d, %d) is %g", i, j, v)
			}
		}
	}

	mmt := matrix.Product(m, m.Transpose())
	eye := matrix.Eye(3)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(mmt.Get(i, j)-eye.Get(i, j)) > 1e-9 {
				return out, rejected("mounting matrix is not a rotation")
			}
		}
	}
	return out, nil
}

// MountingMatrix builds the go.matrix form of a row-major mounting matrix.
func MountingMatrix(m [9]int8) *matrix.DenseMatrix {
	el := make([]float64, 9)
	for i, v := range m {
		el[i] = float64(v)
	}
	return matrix.MakeDenseMatrix(el, 3, 3)
}

package transform

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// singularTolerance is the relative cutoff below which singular values are
// treated as zero when solving least squares.
const singularTolerance = 1e-12

type linearStrategy struct {
	withAltitude bool
}

func (s linearStrategy) Kind() Kind {
	if s.withAltitude {
		return LinearXYZ
	}
	return LinearXZ
}

func (s linearStrategy) Fit(records []domain.CalibrationRecord) (Model, error) {
	if len(records) == 0 {
		return nil, domain.ErrInsufficientRecords
	}
	points := recordGeoPoints(records)
	planar := planarInputs(points)

	fx, err := fitLinear(planar, axis(records, localX))
	if err != nil {
		return nil, fmt.Errorf("fit x: %w", err)
	}
	fz, err := fitLinear(planar, axis(records, localZ))
	if err != nil {
		return nil, fmt.Errorf("fit z: %w", err)
	}

	m := &linearModel{x: fx, z: fz}
	if s.withAltitude {
		fy, err := fitLinear(spatialInputs(points), axis(records, localY))
		if err != nil {
			return nil, fmt.Errorf("fit y: %w", err)
		}
		m.y = &fy
	}
	return m, nil
}

type linearModel struct {
	x, z linearFunc
	y    *linearFunc // nil when Y is not modelled
}

func (m *linearModel) Predict(points []domain.GeoPoint) ([]domain.LocalPoint, error) {
	if len(points) == 0 {
		return nil, domain.ErrEmptyInput
	}
	out := make([]domain.LocalPoint, len(points))
	for i, p := range points {
		in := []float64{p.Longitude, p.Latitude}
		lp := domain.LocalPoint{X: m.x.eval(in), Z: m.z.eval(in)}
		if m.y != nil {
			lp.Y = m.y.eval([]float64{p.Longitude, p.Latitude, p.Altitude})
		}
		out[i] = lp
	}
	return out, nil
}

// linearFunc is y = intercept + sum(coef[i] * (x[i] - mean[i])).
type linearFunc struct {
	mean      []float64
	coef      []float64
	intercept float64
}

func (f linearFunc) eval(in []float64) float64 {
	v := f.intercept
	for i, c := range f.coef {
		v += c * (in[i] - f.mean[i])
	}
	return v
}

// fitLinear solves ordinary least squares with an intercept. Rank-deficient
// systems (fewer records than unknowns, collinear walks) get the minimum-norm
// solution through the SVD pseudo-inverse.
func fitLinear(inputs [][]float64, targets []float64) (linearFunc, error) {
	n := len(inputs)
	if n == 0 {
		return linearFunc{}, domain.ErrInsufficientRecords
	}
	if len(targets) != n {
		return linearFunc{}, domain.ErrLengthMismatch
	}
	p := len(inputs[0])

	mean := make([]float64, p)
	for _, row := range inputs {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(n)
	}

	cols := p + 1
	data := make([]float64, 0, n*cols)
	for _, row := range inputs {
		data = append(data, 1)
		for j, v := range row {
			data = append(data, v-mean[j])
		}
	}
	a := mat.NewDense(n, cols, data)

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return linearFunc{}, errors.New("svd factorization failed")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	tol := singularTolerance * float64(max(n, cols)) * s[0]

	// beta = V * Sigma^+ * U^T * y
	var uty mat.VecDense
	uty.MulVec(u.T(), mat.NewVecDense(n, targets))
	for i, sv := range s {
		if sv > tol {
			uty.SetVec(i, uty.AtVec(i)/sv)
		} else {
			uty.SetVec(i, 0)
		}
	}
	var beta mat.VecDense
	beta.MulVec(&v, &uty)

	coef := make([]float64, p)
	for j := range coef {
		coef[j] = beta.AtVec(j + 1)
	}
	return linearFunc{mean: mean, coef: coef, intercept: beta.AtVec(0)}, nil
}

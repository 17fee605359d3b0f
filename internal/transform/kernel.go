package transform

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/couchcryptid/flood-overlay/internal/domain"
)

// kernelStrategy fits X and Y with polynomial kernel ridge regression.
// complexity plays the role of the SVM C parameter: the ridge penalty is 1/C.
type kernelStrategy struct {
	degree     int
	complexity float64
}

func (kernelStrategy) Kind() Kind { return Kernel }

func (s kernelStrategy) Fit(records []domain.CalibrationRecord) (Model, error) {
	if len(records) == 0 {
		return nil, domain.ErrInsufficientRecords
	}
	sc := newScaler(planarInputs(recordGeoPoints(records)))
	support := sc.applyAll(planarInputs(recordGeoPoints(records)))

	gram := s.gram(support)
	var chol mat.Cholesky
	if ok := chol.Factorize(gram); !ok {
		return nil, errors.New("kernel matrix is not positive definite")
	}

	fx, err := s.solve(&chol, support, axis(records, localX))
	if err != nil {
		return nil, fmt.Errorf("fit x: %w", err)
	}
	fy, err := s.solve(&chol, support, axis(records, localY))
	if err != nil {
		return nil, fmt.Errorf("fit y: %w", err)
	}
	return &kernelModel{scaler: sc, x: fx, y: fy}, nil
}

func (s kernelStrategy) gram(support [][]float64) *mat.SymDense {
	n := len(support)
	lambda := 1 / s.complexity
	k := mat.NewSymDense(n, nil)
	for i := range n {
		for j := i; j < n; j++ {
			v := polyKernel(support[i], support[j], s.degree)
			if i == j {
				v += lambda
			}
			k.SetSym(i, j, v)
		}
	}
	return k
}

func (s kernelStrategy) solve(chol *mat.Cholesky, support [][]float64, targets []float64) (kernelFunc, error) {
	var bias float64
	for _, t := range targets {
		bias += t
	}
	bias /= float64(len(targets))

	centered := make([]float64, len(targets))
	for i, t := range targets {
		centered[i] = t - bias
	}

	var alpha mat.VecDense
	if err := chol.SolveVecTo(&alpha, mat.NewVecDense(len(centered), centered)); err != nil {
		return kernelFunc{}, err
	}
	coef := make([]float64, len(centered))
	for i := range coef {
		coef[i] = alpha.AtVec(i)
	}
	return kernelFunc{support: support, alpha: coef, bias: bias, degree: s.degree}, nil
}

type kernelModel struct {
	scaler scaler
	x, y   kernelFunc
}

func (m *kernelModel) Predict(points []domain.GeoPoint) ([]domain.LocalPoint, error) {
	if len(points) == 0 {
		return nil, domain.ErrEmptyInput
	}
	out := make([]domain.LocalPoint, len(points))
	for i, p := range points {
		in := m.scaler.apply([]float64{p.Longitude, p.Latitude})
		out[i] = domain.LocalPoint{X: m.x.eval(in), Y: m.y.eval(in)}
	}
	return out, nil
}

type kernelFunc struct {
	support [][]float64
	alpha   []float64
	bias    float64
	degree  int
}

func (f kernelFunc) eval(in []float64) float64 {
	v := f.bias
	for i, sv := range f.support {
		v += f.alpha[i] * polyKernel(sv, in, f.degree)
	}
	return v
}

func polyKernel(a, b []float64, degree int) float64 {
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return math.Pow(dot+1, float64(degree))
}

// scaler standardizes each input column to zero mean and unit variance.
// Constant columns are only centered.
type scaler struct {
	mean, scale []float64
}

func newScaler(rows [][]float64) scaler {
	p := len(rows[0])
	n := float64(len(rows))
	s := scaler{mean: make([]float64, p), scale: make([]float64, p)}
	for _, r := range rows {
		for j, v := range r {
			s.mean[j] += v
		}
	}
	for j := range s.mean {
		s.mean[j] /= n
	}
	for _, r := range rows {
		for j, v := range r {
			d := v - s.mean[j]
			s.scale[j] += d * d
		}
	}
	for j := range s.scale {
		s.scale[j] = math.Sqrt(s.scale[j] / n)
		if s.scale[j] == 0 {
			s.scale[j] = 1
		}
	}
	return s
}

func (s scaler) apply(in []float64) []float64 {
	out := make([]float64, len(in))
	for j, v := range in {
		out[j] = (v - s.mean[j]) / s.scale[j]
	}
	return out
}

func (s scaler) applyAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		out[i] = s.apply(r)
	}
	return out
}

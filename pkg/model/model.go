package model

import "errors"

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("model: not fitted")

// Regressor is a supervised learner with a real-valued target.
type Regressor interface {
	Fit(X [][]float64, y []float64) error
	Predict(X [][]float64) ([]float64, error)
}

var _ Regressor = (*DecisionTreeRegressor)(nil)

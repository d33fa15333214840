package web

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/sweeney/heater-control/internal/control"
	"github.com/sweeney/heater-control/internal/state"
)

var errMissingValue = errors.New("missing field: value")

type badRequestError struct{ err error }

func (e badRequestError) Error() string { return "bad request: " + e.err.Error() }
func (e badRequestError) Unwrap() error { return e.err }

// ErrResponse is the body of every failed API request.
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	ErrorText      string `json:"error"`
}

// Render sets the response status.
func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(err error) *ErrResponse {
	code := http.StatusInternalServerError
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		code = http.StatusBadRequest
	case errors.Is(err, state.ErrValidation):
		code = http.StatusUnprocessableEntity
	}
	return &ErrResponse{Err: err, HTTPStatusCode: code, ErrorText: err.Error()}
}

type modeRequest struct {
	Mode control.Mode `json:"mode"`
}

func (m *modeRequest) Bind(*http.Request) error { return nil }

type gainsRequest struct {
	Kp *float64 `json:"kp"`
	Ki *float64 `json:"ki"`
	Kd *float64 `json:"kd"`
}

func (g *gainsRequest) Bind(*http.Request) error {
	if g.Kp == nil || g.Ki == nil || g.Kd == nil {
		return errors.New("kp, ki and kd are all required")
	}
	return nil
}

func (g *gainsRequest) gains() control.Gains {
	return control.Gains{Kp: *g.Kp, Ki: *g.Ki, Kd: *g.Kd}
}

// setpointRequest addresses channel 1..4, or all channels when channel is 0
// or omitted.
type setpointRequest struct {
	Channel int      `json:"channel"`
	Value   *float64 `json:"value"`
}

func (s *setpointRequest) Bind(*http.Request) error {
	if s.Value == nil {
		return errMissingValue
	}
	return nil
}

type frequencyRequest struct {
	Value *float64 `json:"value"`
}

func (f *frequencyRequest) Bind(*http.Request) error {
	if f.Value == nil {
		return errMissingValue
	}
	return nil
}

// controlResponse is returned by every successful API request.
type controlResponse struct {
	Enabled   bool      `json:"enabled"`
	Mode      string    `json:"mode"`
	Frequency float64   `json:"frequency"`
	Kp        float64   `json:"kp"`
	Ki        float64   `json:"ki"`
	Kd        float64   `json:"kd"`
	Setpoints []float64 `json:"setpoints"`
}

func newControlResponse(s state.Snapshot) controlResponse {
	return controlResponse{
		Enabled:   s.Enabled,
		Mode:      string(s.Mode),
		Frequency: s.Frequency,
		Kp:        s.Gains.Kp,
		Ki:        s.Gains.Ki,
		Kd:        s.Gains.Kd,
		Setpoints: append([]float64(nil), s.Setpoints[:]...),
	}
}

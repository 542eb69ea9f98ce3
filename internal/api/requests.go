package api

import (
	"encoding/json"
	"io"
	"math"
	"net/http"

	"github.com/crazy3lf/colorconv"
	"github.com/rotisserie/eris"

	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/utils"
)

const maxBodyBytes = 1 << 16

var errBadRequest = eris.New("bad request")

// commandOptions are the animation fields every command body accepts.
// Durations are in seconds.
type commandOptions struct {
	FadeTime  float64 `json:"fadeTime"`
	PostDelay float64 `json:"postDelay"`
	Flash     bool    `json:"flash"`
}

func (o commandOptions) options() (light.Options, error) {
	if o.FadeTime < 0 || math.IsNaN(o.FadeTime) {
		return light.Options{}, eris.Wrap(errBadRequest, "fadeTime must be a non-negative number of seconds")
	}
	if o.PostDelay < 0 || math.IsNaN(o.PostDelay) {
		return light.Options{}, eris.Wrap(errBadRequest, "postDelay must be a non-negative number of seconds")
	}
	return light.Options{
		FadeTime:  utils.Seconds(o.FadeTime),
		PostDelay: utils.Seconds(o.PostDelay),
		Flash:     o.Flash,
	}, nil
}

type switchRequest struct {
	commandOptions
}

type presetRequest struct {
	commandOptions
}

type adjustRequest struct {
	commandOptions
	Power int     `json:"power"`
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
	White float64 `json:"white"`
}

type stateRequest struct {
	commandOptions
	Red   *float64 `json:"red"`
	Green *float64 `json:"green"`
	Blue  *float64 `json:"blue"`
	White *float64 `json:"white"`
	On    *bool    `json:"on"`
	Power *int     `json:"power"`
}

type auroraRequest struct {
	commandOptions
	MinColour     light.Colour `json:"minColour"`
	MaxColour     light.Colour `json:"maxColour"`
	MinColourDist *float64     `json:"minColourDist"`
}

// hsvRequest takes hue in degrees, saturation and value in percent.
type hsvRequest struct {
	commandOptions
	Hue        float64  `json:"hue"`
	Saturation float64  `json:"saturation"`
	Value      float64  `json:"value"`
	White      *float64 `json:"white"`
	Power      *int     `json:"power"`
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return eris.Wrapf(errBadRequest, "invalid body: %v", err)
	}
	return nil
}

func checkPercent(name string, v float64) error {
	if v < 0 || v > 100 || math.IsNaN(v) {
		return eris.Wrapf(errBadRequest, "%s must be within [0, 100]", name)
	}
	return nil
}

func checkOptionalPercent(name string, v *float64) error {
	if v == nil {
		return nil
	}
	return checkPercent(name, *v)
}

func checkPower(p *int) error {
	if p != nil && (*p < 0 || *p > 100) {
		return eris.Wrap(errBadRequest, "power must be within [0, 100]")
	}
	return nil
}

func (r switchRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	return light.Switch{Options: opts}, nil
}

func (r presetRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	return light.ChangePreset{Options: opts}, nil
}

func (r adjustRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	if r.Power < -100 || r.Power > 100 {
		return nil, eris.Wrap(errBadRequest, "power delta must be within [-100, 100]")
	}
	return light.Adjustment{
		Options: opts,
		Power:   r.Power,
		Colour:  light.Colour{Red: r.Red, Green: r.Green, Blue: r.Blue, White: r.White},
	}, nil
}

func (r stateRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	for _, f := range []struct {
		name string
		v    *float64
	}{{"red", r.Red}, {"green", r.Green}, {"blue", r.Blue}, {"white", r.White}} {
		if err := checkOptionalPercent(f.name, f.v); err != nil {
			return nil, err
		}
	}
	if err := checkPower(r.Power); err != nil {
		return nil, err
	}
	return light.StateChange{
		Options: opts,
		Red:     r.Red,
		Green:   r.Green,
		Blue:    r.Blue,
		White:   r.White,
		On:      r.On,
		Power:   r.Power,
	}, nil
}

func (r auroraRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	dist := light.DefaultMinColourDist
	if r.MinColourDist != nil {
		dist = *r.MinColourDist
		if dist < 0 || math.IsNaN(dist) {
			return nil, eris.Wrap(errBadRequest, "minColourDist must be non-negative")
		}
	}
	if r.MaxColour.IsZero() {
		return nil, eris.Wrap(errBadRequest, "maxColour must have a positive channel")
	}
	return light.Aurora{
		Options:       opts,
		MinColour:     r.MinColour,
		MaxColour:     r.MaxColour,
		MinColourDist: dist,
	}, nil
}

func (r hsvRequest) command() (light.Command, error) {
	opts, err := r.options()
	if err != nil {
		return nil, err
	}
	if r.Hue < 0 || r.Hue > 360 || math.IsNaN(r.Hue) {
		return nil, eris.Wrap(errBadRequest, "hue must be within [0, 360]")
	}
	if err := checkPercent("saturation", r.Saturation); err != nil {
		return nil, err
	}
	if err := checkPercent("value", r.Value); err != nil {
		return nil, err
	}
	if err := checkOptionalPercent("white", r.White); err != nil {
		return nil, err
	}
	if err := checkPower(r.Power); err != nil {
		return nil, err
	}

	red, green, blue, err := colorconv.HSVToRGB(math.Mod(r.Hue, 360), r.Saturation/100, r.Value/100)
	if err != nil {
		return nil, eris.Wrapf(errBadRequest, "invalid colour: %v", err)
	}

	white := 0.0
	if r.White != nil {
		white = *r.White
	}
	return light.StateChange{
		Options: opts,
		Red:     light.Some(percent(red)),
		Green:   light.Some(percent(green)),
		Blue:    light.Some(percent(blue)),
		White:   light.Some(white),
		On:      light.Some(true),
		Power:   r.Power,
	}, nil
}

// percent maps an 8-bit channel onto [0, 100] with one decimal.
func percent(v uint8) float64 {
	return math.Round(float64(v)/255*1000) / 10
}

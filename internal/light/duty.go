package light

import "github.com/dokzlo13/dimmerd/internal/utils"

// MaxDuty is the full-scale PWM duty cycle.
const MaxDuty = 255

// TargetDuty converts a state into per-channel duty cycles. The colour is
// normalized so its largest channel maps to 100, scaled by effective power and
// mapped onto [0, MaxDuty].
func TargetDuty(s State) [ChannelCount]int {
	var out [ChannelCount]int

	colour := s.Active()
	peak := colour.Max()
	if peak <= 0 {
		return out
	}

	power := float64(s.EffectivePower())
	for i, ch := range Channels {
		normalized := colour.Get(ch) / peak * 100
		out[i] = utils.TruncateDuty(normalized * power * MaxDuty / 10000)
	}
	return out
}

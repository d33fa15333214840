package control

// BangBang switches a heater fully on at or below the setpoint and fully off
// above it. No hysteresis.
type BangBang struct {
	setpoint float64
}

// NewBangBang creates a bang-bang controller.
func NewBangBang(setpoint float64) *BangBang {
	return &BangBang{setpoint: setpoint}
}

// Process returns 0 when measured is above the setpoint, otherwise 1.
func (b *BangBang) Process(measured float64) float64 {
	if measured > b.setpoint {
		return 0.0
	}
	return 1.0
}

func (b *BangBang) Setpoint() float64     { return b.setpoint }
func (b *BangBang) SetSetpoint(v float64) { b.setpoint = v }

package actuation

import "math"

// Calibration maps logical commands onto the board's units.
type Calibration struct {
	SteeringTrimUs int     // added to every servo pulse
	ServoMinUs     int     // pulse at -90 degrees
	ServoMaxUs     int     // pulse at +90 degrees
	SteeringLimit  float64 // absolute steering clamp in degrees
	MotorNeutral   int     // motor level that holds the vehicle still
	MotorMax       int
}

// DefaultCalibration matches a standard hobby servo and the drive board's
// 0..13000 motor range.
func DefaultCalibration() Calibration {
	return Calibration{
		ServoMinUs:    500,
		ServoMaxUs:    2500,
		SteeringLimit: 30,
		MotorNeutral:  10000,
		MotorMax:      13000,
	}
}

// SteeringPulse converts degrees (positive = left) into a servo pulse width
// in microseconds: 0 degrees maps to the midpoint of the pulse range.
func (c Calibration) SteeringPulse(deg float64) int {
	if c.SteeringLimit > 0 {
		deg = math.Max(-c.SteeringLimit, math.Min(c.SteeringLimit, deg))
	}
	span := float64(c.ServoMaxUs - c.ServoMinUs)
	us := float64(c.ServoMinUs) + (deg+90)/180*span
	return int(math.Round(us)) + c.SteeringTrimUs
}

// MotorDuty clamps a motor level to the board's range.
func (c Calibration) MotorDuty(level int) int {
	return min(max(level, 0), c.MotorMax)
}

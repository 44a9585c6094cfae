package hub

import "github.com/robotalks/boost.go/pkg/lwp"

// IsMotor indicates the device reports position and accepts speed commands.
func IsMotor(d lwp.DeviceType) bool {
	return d == lwp.DeviceMotorInternal || d == lwp.DeviceMotorExternal
}

// InputMode selects the input mode subscribed when a device is attached.
func InputMode(d lwp.DeviceType) byte {
	switch d {
	case lwp.DeviceMotorInternal, lwp.DeviceMotorExternal:
		return lwp.ModeMotorSensor
	case lwp.DeviceColor:
		return lwp.ModeColor
	case lwp.DeviceTilt:
		return lwp.ModeTilt
	case lwp.DeviceLED:
		return lwp.ModeLED
	}
	return lwp.ModeUnknown
}

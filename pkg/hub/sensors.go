package hub

import (
	"fmt"
	"strconv"
	"strings"
)

// TiltThreshold is the angle in degrees a direction must reach to count as tilted.
const TiltThreshold = 15

// TiltDirection names a direction of the tilt sensor.
type TiltDirection int

// Tilt directions.
const (
	TiltUp TiltDirection = iota
	TiltDown
	TiltLeft
	TiltRight
	TiltAny
)

var tiltDirectionNames = []string{"up", "down", "left", "right", "any"}

func (d TiltDirection) String() string {
	if d >= 0 && int(d) < len(tiltDirectionNames) {
		return tiltDirectionNames[d]
	}
	return "unknown"
}

// ParseTiltDirection parses the name of a tilt direction.
func ParseTiltDirection(s string) (TiltDirection, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for n, name := range tiltDirectionNames {
		if name == s {
			return TiltDirection(n), true
		}
	}
	return TiltAny, false
}

// Color is a color recognized by the color sensor.
type Color int

// Colors, ColorNone when nothing is recognized.
const (
	ColorNone Color = iota
	ColorRed
	ColorBlue
	ColorGreen
	ColorYellow
	ColorWhite
	ColorBlack
)

var colorNames = []string{"none", "red", "blue", "green", "yellow", "white", "black"}

// colorIndices are the hub color indices.
var colorIndices = []byte{255, 9, 3, 5, 7, 10, 0}

func (c Color) String() string {
	if c >= 0 && int(c) < len(colorNames) {
		return colorNames[c]
	}
	return "unknown"
}

// Index returns the hub color index.
func (c Color) Index() byte {
	if c >= 0 && int(c) < len(colorIndices) {
		return colorIndices[c]
	}
	return colorIndices[ColorNone]
}

// ColorFromIndex maps a hub color index. Indices without a name map to ColorNone.
func ColorFromIndex(index byte) Color {
	for n, v := range colorIndices {
		if v == index {
			return Color(n)
		}
	}
	return ColorNone
}

// ParseColor parses the name of a color. "any" is not a Color.
func ParseColor(s string) (Color, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for n, name := range colorNames {
		if name == s {
			return Color(n), true
		}
	}
	return ColorNone, false
}

// ParseRGB parses a LED color like #00ff00 or 0x00ff00.
func ParseRGB(s string) (uint32, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "#"), "0x")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || v > 0xffffff {
		return 0, fmt.Errorf("invalid color %q", s)
	}
	return uint32(v), nil
}

// Sensors keeps the latest values of the tilt and color sensors.
type Sensors struct {
	TiltX, TiltY byte
	Color        Color

	previousColor Color
}

// TiltAngle converts the raw tilt bytes into a signed angle towards dir.
// TiltAny returns the largest of the four.
func (s *Sensors) TiltAngle(dir TiltDirection) int {
	x, y := int(int8(s.TiltX)), int(int8(s.TiltY))
	switch dir {
	case TiltUp:
		return -y
	case TiltDown:
		return y
	case TiltLeft:
		return x
	case TiltRight:
		return -x
	case TiltAny:
		return max(abs(x), abs(y))
	}
	return 0
}

// IsTilted tells whether the angle towards dir reaches TiltThreshold.
func (s *Sensors) IsTilted(dir TiltDirection) bool {
	return s.TiltAngle(dir) >= TiltThreshold
}

// SeeingColor tells whether the sensor currently reports c.
func (s *Sensors) SeeingColor(c Color) bool {
	return s.Color == c
}

// ColorChanged reports true once per change of color, remembering the
// current color as the previous one.
func (s *Sensors) ColorChanged() bool {
	if s.Color == s.previousColor {
		return false
	}
	s.previousColor = s.Color
	return true
}

func (s *Sensors) resetTilt() {
	s.TiltX, s.TiltY = 0, 0
}

func (s *Sensors) resetColor() {
	s.Color = ColorNone
}

func (s *Sensors) reset() {
	*s = Sensors{}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

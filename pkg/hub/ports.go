package hub

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver"
	"github.com/golang/glog"
	"github.com/robotalks/boost.go/pkg/lwp"
)

// PortMap assigns port IDs to the labeled ports of the hub.
type PortMap struct {
	A, B, C, D byte
}

// Port maps of the firmware generations.
var (
	LegacyPortMap = PortMap{A: 55, B: 56, C: 1, D: 2}
	PortMap10224  = PortMap{A: 0, B: 1, C: 2, D: 3}
)

// firmware starting to number ports from 0.
var renumberedPorts = mustConstraint(">= 1.0.224")

func mustConstraint(s string) *semver.Constraints {
	c, err := semver.NewConstraint(s)
	if err != nil {
		panic(err)
	}
	return c
}

// PortMapFor selects the port map by firmware version.
func PortMapFor(v lwp.Version) PortMap {
	// bugfix and build are folded into the patch number.
	sv, err := semver.NewVersion(fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Bugfix*10000+v.Build))
	if err != nil {
		glog.Warningf("firmware %s: %v", v, err)
		return LegacyPortMap
	}
	if renumberedPorts.Check(sv) {
		return PortMap10224
	}
	return LegacyPortMap
}

// Labels of ports accepted by Resolve.
const (
	LabelA   = "A"
	LabelB   = "B"
	LabelC   = "C"
	LabelD   = "D"
	LabelAB  = "AB"
	LabelAll = "ALL"
)

// Resolve returns the port IDs of a label.
func (m PortMap) Resolve(label string) ([]byte, bool) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case LabelA:
		return []byte{m.A}, true
	case LabelB:
		return []byte{m.B}, true
	case LabelC:
		return []byte{m.C}, true
	case LabelD:
		return []byte{m.D}, true
	case LabelAB:
		return []byte{m.A, m.B}, true
	case LabelAll:
		return []byte{m.A, m.B, m.C, m.D}, true
	}
	return nil, false
}

// Label returns the label of a port ID, or its number.
func (m PortMap) Label(port byte) string {
	switch port {
	case m.A:
		return LabelA
	case m.B:
		return LabelB
	case m.C:
		return LabelC
	case m.D:
		return LabelD
	}
	return fmt.Sprintf("%d", port)
}

// Motor directions accepted by ParseDirection.
const (
	DirectionThisWay = "this way"
	DirectionThatWay = "that way"
	DirectionReverse = "reverse"
)

// ParseDirection returns 1 or -1 for a direction name, 0 for reverse.
func ParseDirection(s string) (int, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case DirectionThisWay, "this", "forward", "1", "+1":
		return 1, true
	case DirectionThatWay, "that", "backward", "-1":
		return -1, true
	case DirectionReverse:
		return 0, true
	}
	return 0, false
}

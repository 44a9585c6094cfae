package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

const appID = "boost.go"

// machineIDLen keeps the ID short enough for topic names.
const machineIDLen = 12

// MachineID retrieves an ID identifying the machine, derived from the
// machine's unique ID. It falls back to the hostname.
func MachineID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("machine id: %v", err)
		if id, err = os.Hostname(); err != nil || id == "" {
			id = "boost"
		}
	}
	if len(id) > machineIDLen {
		id = id[:machineIDLen]
	}
	return id
}

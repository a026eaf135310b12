// Package node resolves the name of the runtime node that originates system
// and configuration events. The name is resolved once at startup and passed
// to the components that need it.
package node

import (
	"os"
	"strings"
)

// Missing is used when no usable name can be found.
const Missing = "missing-node-name"

// EnvVar overrides the host name when set.
const EnvVar = "HOMEBUS_NODE_NAME"

// Identity is the resolved name of this node.
type Identity string

func (i Identity) String() string { return string(i) }

// Resolve picks the node name: the configured value, then $HOMEBUS_NODE_NAME,
// then the host name unless it is "localhost", then Missing.
func Resolve(configured string) Identity {
	return resolve(configured, os.Getenv, os.Hostname)
}

func resolve(configured string, getenv func(string) string, hostname func() (string, error)) Identity {
	if name := strings.TrimSpace(configured); name != "" {
		return Identity(name)
	}
	if name := strings.TrimSpace(getenv(EnvVar)); name != "" {
		return Identity(name)
	}
	if host, err := hostname(); err == nil {
		host = strings.TrimSpace(host)
		if host != "" && !strings.EqualFold(host, "localhost") {
			return Identity(host)
		}
	}
	return Missing
}

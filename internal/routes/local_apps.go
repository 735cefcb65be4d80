package routes

import (
	"fmt"
	"strings"
)

const (
	DefaultLocalAppPort     = "8003"
	DefaultLocalAppProtocol = "http"
)

// LocalApp is a parsed local app descriptor of the form name[:port[~protocol]].
type LocalApp struct {
	Name     string
	Port     string
	Protocol string
}

// URL returns the address the app is expected to listen on.
func (a LocalApp) URL(host string) string {
	return fmt.Sprintf("%s://%s:%s", a.Protocol, host, a.Port)
}

// ParseLocalApp parses a single descriptor. Missing or empty parts fall back to the defaults.
func ParseLocalApp(descriptor string) LocalApp {
	name, config, _ := strings.Cut(strings.TrimSpace(descriptor), ":")
	// Anything after a second colon is ignored.
	config, _, _ = strings.Cut(config, ":")
	port, protocol, _ := strings.Cut(config, "~")

	if port == "" {
		port = DefaultLocalAppPort
	}
	if protocol == "" {
		protocol = DefaultLocalAppProtocol
	}
	return LocalApp{Name: name, Port: port, Protocol: protocol}
}

// ParseLocalApps parses descriptors in order, skipping empty entries.
func ParseLocalApps(descriptors []string) []LocalApp {
	apps := make([]LocalApp, 0, len(descriptors))
	for _, d := range descriptors {
		if strings.TrimSpace(d) == "" {
			continue
		}
		apps = append(apps, ParseLocalApp(d))
	}
	return apps
}

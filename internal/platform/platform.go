// Package platform resolves which SSO server the console authenticates against.
package platform

import (
	"slices"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Environment describes the console hostnames of one deployment environment and its SSO server.
type Environment struct {
	URL []string `mapstructure:"url" yaml:"url"`
	SSO string   `mapstructure:"sso" yaml:"sso"`
}

// SSORoutes maps an environment name to its hosts.
type SSORoutes map[string]Environment

const DefaultEnvironment = "stg"

var DefaultSSORoutes = SSORoutes{
	"prod": {
		URL: []string{"console.redhat.com", "cloud.redhat.com"},
		SSO: "https://sso.redhat.com/auth",
	},
	"stg": {
		URL: []string{"console.stage.redhat.com", "cloud.stage.redhat.com"},
		SSO: "https://sso.stage.redhat.com/auth",
	},
	"dev": {
		URL: []string{"console.dev.redhat.com"},
		SSO: "https://sso.stage.redhat.com/auth",
	},
}

// sanitizeURL adds a trailing slash if missing.
func sanitizeURL(url string) string {
	return strings.TrimRight(url, "/") + "/"
}

// Environment returns the name of the first environment, in name order, that lists hostname
// among its URLs.
func (r SSORoutes) Environment(hostname string) (string, bool) {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if slices.Contains(r[name].URL, hostname) {
			return name, true
		}
	}
	return "", false
}

// PlatformURL returns the SSO URL for hostname. A configured URL always wins, otherwise the
// matching environment's SSO server is used, falling back to stage.
func PlatformURL(routes SSORoutes, hostname string, configured string) string {
	if configured != "" {
		return sanitizeURL(configured)
	}

	if env, ok := routes.Environment(hostname); ok {
		sso := routes[env].SSO
		log.Debug().Str("env", env).Str("sso", sso).Msg("resolved SSO url")
		return sanitizeURL(sso)
	}

	log.Debug().Str("hostname", hostname).Msg("SSO url not found, defaulting to stage")
	if stage, ok := routes[DefaultEnvironment]; ok {
		return sanitizeURL(stage.SSO)
	}
	return sanitizeURL(DefaultSSORoutes[DefaultEnvironment].SSO)
}

package routes

import (
	"net/http"
	"strings"

	"github.com/habitat-network/chrome-devproxy/internal/identity"
)

// RequestTransform mutates the outgoing proxied request before it is sent upstream.
// in is the request received by the development server; opts carries the identity
// overrides configured on the rule.
type RequestTransform func(out *http.Request, in *http.Request, opts identity.Options)

// RouteOverride is the object form of a route value. Host becomes the rule target and is
// never carried anywhere else. Nil fields keep the rule defaults.
type RouteOverride struct {
	Host         string            `mapstructure:"host"          yaml:"host,omitempty"`
	Secure       *bool             `mapstructure:"secure"        yaml:"secure,omitempty"`
	ChangeOrigin *bool             `mapstructure:"change_origin" yaml:"change_origin,omitempty"`
	AutoRewrite  *bool             `mapstructure:"auto_rewrite"  yaml:"auto_rewrite,omitempty"`
	WebSocket    *bool             `mapstructure:"ws"            yaml:"ws,omitempty"`
	PathRewrite  map[string]string `mapstructure:"path_rewrite"  yaml:"path_rewrite,omitempty"`
	Headers      map[string]string `mapstructure:"headers"       yaml:"headers,omitempty"`

	// Identity overrides handed to the request transform for this route.
	User     *identity.UserOverride     `mapstructure:"user"     yaml:"user,omitempty"`
	Internal *identity.InternalOverride `mapstructure:"internal" yaml:"internal,omitempty"`
	Identity *identity.IdentityOverride `mapstructure:"identity" yaml:"identity,omitempty"`

	// Transform replaces the default request transform. It can only be set from code.
	Transform RequestTransform `mapstructure:"-" yaml:"-"`
}

// RouteValue is either a plain target URL or an override object.
type RouteValue struct {
	Target   string
	Override *RouteOverride
}

// TargetValue is shorthand for the string form of a route value.
func TargetValue(target string) RouteValue {
	return RouteValue{Target: target}
}

// OverrideValue is shorthand for the object form of a route value.
func OverrideValue(o *RouteOverride) RouteValue {
	return RouteValue{Override: o}
}

// RouteEntry pairs a route substring with its value.
type RouteEntry struct {
	Match string
	Value RouteValue
}

// RouteMap is an ordered mapping of route substrings to route values.
type RouteMap []RouteEntry

// Add appends an entry and returns the map for chaining.
func (m RouteMap) Add(match string, value RouteValue) RouteMap {
	return append(m, RouteEntry{Match: match, Value: value})
}

// Rule is a compiled proxy rule. A rule matches any request URL that contains Match.
type Rule struct {
	Match        string            `yaml:"match"`
	Target       string            `yaml:"target"`
	Secure       bool              `yaml:"secure"`
	ChangeOrigin bool              `yaml:"change_origin"`
	AutoRewrite  bool              `yaml:"auto_rewrite"`
	WebSocket    bool              `yaml:"ws"`
	PathRewrite  map[string]string `yaml:"path_rewrite,omitempty"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Identity     identity.Options  `yaml:"identity,omitempty"`

	Transform RequestTransform `yaml:"-"`
}

// Matches reports whether the request URL contains the rule's route substring.
func (r *Rule) Matches(url string) bool {
	return strings.Contains(url, r.Match)
}

// Apply runs the rule's request transform, if any.
func (r *Rule) Apply(out *http.Request, in *http.Request) {
	if r.Transform == nil {
		return
	}
	r.Transform(out, in, r.Identity)
}

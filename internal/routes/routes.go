package routes

import (
	"context"
	"fmt"
	"strings"

	"github.com/habitat-network/chrome-devproxy/internal/identity"
	"github.com/rs/zerolog/log"
)

// Options configures GetProxyRoutes.
type Options struct {
	// Target is used for any route that does not name its own host.
	Target string
	Routes RouteMap
	// LocalApps is the pre-split descriptor list, see SplitLocalApps.
	LocalApps           []string
	DefaultLocalAppHost string

	// Prober checks local apps before they are registered. Defaults to an HTTPProber.
	Prober Prober
	// Transform is the default request transform for every rule.
	Transform RequestTransform
}

// BuildRoutes compiles a route map into proxy rules, one per entry, in input order.
func BuildRoutes(routeMap RouteMap, target string, transform RequestTransform) []*Rule {
	rules := make([]*Rule, 0, len(routeMap))
	for _, entry := range routeMap {
		rules = append(rules, buildRule(entry, target, transform))
	}
	return rules
}

func buildRule(entry RouteEntry, target string, transform RequestTransform) *Rule {
	rule := &Rule{
		Match:        entry.Match,
		Target:       entry.Value.Target,
		Secure:       false,
		ChangeOrigin: true,
		AutoRewrite:  true,
		WebSocket:    true,
		Transform:    transform,
	}

	o := entry.Value.Override
	if o != nil {
		rule.Target = o.Host
		if o.Secure != nil {
			rule.Secure = *o.Secure
		}
		if o.ChangeOrigin != nil {
			rule.ChangeOrigin = *o.ChangeOrigin
		}
		if o.AutoRewrite != nil {
			rule.AutoRewrite = *o.AutoRewrite
		}
		if o.WebSocket != nil {
			rule.WebSocket = *o.WebSocket
		}
		if o.Transform != nil {
			rule.Transform = o.Transform
		}
		rule.PathRewrite = copyStrings(o.PathRewrite)
		rule.Headers = copyStrings(o.Headers)
		rule.Identity = identity.Options{
			User:     o.User,
			Internal: o.Internal,
			Identity: o.Identity,
		}
	}

	if rule.Target == "" {
		rule.Target = target
	}
	return rule
}

// BuildLocalAppRoutes probes every local app in order and compiles a rule routing
// /apps/{name} to it. The first unavailable app aborts compilation.
func BuildLocalAppRoutes(
	ctx context.Context,
	apps []string,
	defaultHost string,
	target string,
	prober Prober,
	transform RequestTransform,
) ([]*Rule, error) {
	if prober == nil {
		prober = NewHTTPProber(DefaultProbeTimeout)
	}

	var routeMap RouteMap
	for _, app := range ParseLocalApps(apps) {
		appURL := app.URL(defaultHost)
		if err := prober.Probe(ctx, appURL); err != nil {
			log.Error().Err(err).Msgf("Local app %s is not running on %s.", app.Name, appURL)
			return nil, &ProbeError{App: app.Name, URL: appURL, Err: err}
		}
		log.Info().Msgf("Creating app proxy route for: %s → %s", app.Name, appURL)
		routeMap = routeMap.Add("/apps/"+app.Name, OverrideValue(&RouteOverride{Host: appURL}))
	}
	return BuildRoutes(routeMap, target, transform), nil
}

// GetProxyRoutes compiles explicit routes followed by local app routes.
func GetProxyRoutes(ctx context.Context, opts Options) ([]*Rule, error) {
	rules := BuildRoutes(opts.Routes, opts.Target, opts.Transform)
	if len(opts.LocalApps) == 0 {
		return rules, nil
	}

	local, err := BuildLocalAppRoutes(ctx, opts.LocalApps, opts.DefaultLocalAppHost, opts.Target, opts.Prober, opts.Transform)
	if err != nil {
		return nil, fmt.Errorf("building local app routes: %w", err)
	}
	return append(rules, local...), nil
}

// SplitLocalApps splits a comma separated descriptor list.
func SplitLocalApps(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func copyStrings(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

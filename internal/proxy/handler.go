package proxy

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"regexp"
	"sort"

	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/habitat-network/chrome-devproxy/internal/utils"
)

type inboundHostKey struct{}

type pathRewrite struct {
	pattern     *regexp.Regexp
	replacement string
}

func compilePathRewrites(rewrites map[string]string) ([]pathRewrite, error) {
	patterns := make([]string, 0, len(rewrites))
	for p := range rewrites {
		patterns = append(patterns, p)
	}
	sort.Strings(patterns)

	compiled := make([]pathRewrite, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid path rewrite %q: %w", p, err)
		}
		compiled = append(compiled, pathRewrite{pattern: re, replacement: rewrites[p]})
	}
	return compiled, nil
}

func newTransport(secure bool) http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !secure {
		// Dev targets commonly use self-signed certificates.
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}
	return transport
}

// newRuleHandler builds the reverse proxy serving a single rule.
func newRuleHandler(rule *routes.Rule) (*httputil.ReverseProxy, error) {
	target, err := url.Parse(rule.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target %q of rule %q: %w", rule.Target, rule.Match, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("target %q of rule %q must be an absolute URL", rule.Target, rule.Match)
	}

	rewrites, err := compilePathRewrites(rule.PathRewrite)
	if err != nil {
		return nil, err
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			if len(rewrites) > 0 {
				path := pr.In.URL.Path
				for _, rw := range rewrites {
					path = rw.pattern.ReplaceAllString(path, rw.replacement)
				}
				pr.Out.URL.Path = path
				pr.Out.URL.RawPath = ""
			}
			pr.SetURL(target)
			if !rule.ChangeOrigin {
				pr.Out.Host = pr.In.Host
			}
			for k, v := range rule.Headers {
				pr.Out.Header.Set(k, v)
			}
			rule.Apply(pr.Out, pr.In)
		},
		Transport: newTransport(rule.Secure),
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			utils.ProxyError(w, r, err, rule.Target, http.StatusBadGateway)
		},
	}
	if rule.AutoRewrite {
		proxy.ModifyResponse = func(resp *http.Response) error {
			rewriteLocation(resp, target)
			return nil
		}
	}
	return proxy, nil
}

// rewriteLocation points redirects to the target back at the host the client used.
func rewriteLocation(resp *http.Response, target *url.URL) {
	switch resp.StatusCode {
	case http.StatusCreated, http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return
	}

	location := resp.Header.Get("Location")
	if location == "" || resp.Request == nil {
		return
	}
	inboundHost, _ := resp.Request.Context().Value(inboundHostKey{}).(string)
	if inboundHost == "" {
		return
	}

	u, err := url.Parse(location)
	if err != nil || u.Host != target.Host {
		return
	}
	u.Host = inboundHost
	resp.Header.Set("Location", u.String())
}

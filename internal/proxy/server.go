package proxy

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/habitat-network/chrome-devproxy/internal/utils"
	"github.com/rs/zerolog"
	"tailscale.com/tsnet"
)

const RequestIDHeader = utils.RequestIDHeader

type ruleHandler struct {
	rule    *routes.Rule
	handler http.Handler
}

// ProxyServer dispatches each request to the first compiled rule whose route substring it
// contains. Rules are fixed for the lifetime of the server.
type ProxyServer struct {
	logger   *zerolog.Logger
	rules    []ruleHandler
	fallback http.Handler
}

var _ http.Handler = (*ProxyServer)(nil)

type Option func(*ProxyServer)

// WithStaticDir serves files from dir for requests that match no rule.
func WithStaticDir(dir string) Option {
	return func(s *ProxyServer) {
		if dir != "" {
			s.fallback = http.FileServer(http.Dir(dir))
		}
	}
}

// WithFallback serves unmatched requests with h.
func WithFallback(h http.Handler) Option {
	return func(s *ProxyServer) {
		s.fallback = h
	}
}

func NewProxyServer(logger *zerolog.Logger, rules []*routes.Rule, opts ...Option) (*ProxyServer, error) {
	s := &ProxyServer{
		logger: logger,
		rules:  make([]ruleHandler, 0, len(rules)),
	}
	for _, rule := range rules {
		handler, err := newRuleHandler(rule)
		if err != nil {
			return nil, err
		}
		s.rules = append(s.rules, ruleHandler{rule: rule, handler: handler})
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Match returns the first rule matching the request URL, or nil.
func (s *ProxyServer) Match(r *http.Request) *routes.Rule {
	if rh := s.match(r); rh != nil {
		return rh.rule
	}
	return nil
}

func (s *ProxyServer) match(r *http.Request) *ruleHandler {
	requestURL := r.URL.RequestURI()
	for i := range s.rules {
		if s.rules[i].rule.Matches(requestURL) {
			return &s.rules[i]
		}
	}
	return nil
}

func (s *ProxyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		r.Header.Set(RequestIDHeader, requestID)
	}
	w.Header().Set(RequestIDHeader, requestID)

	rh := s.match(r)
	if rh == nil {
		s.logger.Debug().Str("request_id", requestID).Msgf("no rule matched %s", r.URL.Path)
		if s.fallback != nil {
			s.fallback.ServeHTTP(w, r)
			return
		}
		utils.WriteHTTPError(w, fmt.Errorf("no proxy route matches %s", r.URL.Path), http.StatusNotFound)
		return
	}

	if isWebSocket(r) && !rh.rule.WebSocket {
		s.logger.Warn().Str("request_id", requestID).Msgf("websocket upgrade refused by rule %s", rh.rule.Match)
		utils.WriteHTTPError(w, fmt.Errorf("websocket upgrades are disabled for %s", rh.rule.Match), http.StatusBadRequest)
		return
	}

	s.logger.Debug().
		Str("request_id", requestID).
		Str("rule", rh.rule.Match).
		Str("target", rh.rule.Target).
		Msgf("%s %s", r.Method, r.URL.RequestURI())

	ctx := context.WithValue(r.Context(), inboundHostKey{}, r.Host)
	rh.handler.ServeHTTP(w, r.WithContext(ctx))
}

func isWebSocket(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// TailscaleOptions exposes the proxy on a tailnet instead of a local port.
type TailscaleOptions struct {
	Authkey  string
	Hostname string
	StateDir string
}

// Listener creates a tsnet listener when a Tailscale auth key is configured and a normal
// tcp listener otherwise.
func (s *ProxyServer) Listener(addr string, ts TailscaleOptions) (net.Listener, error) {
	if ts.Authkey == "" {
		return net.Listen("tcp", addr)
	}

	tsServer := &tsnet.Server{
		Hostname: ts.Hostname,
		Dir:      ts.StateDir,
		AuthKey:  ts.Authkey,
		Logf: func(msg string, args ...any) {
			s.logger.Debug().Msgf(msg, args...)
		},
	}
	ln, err := tsServer.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on tailnet: %w", err)
	}
	return ln, nil
}

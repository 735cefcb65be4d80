package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/habitat-network/chrome-devproxy/internal/devtoken"
	"github.com/habitat-network/chrome-devproxy/internal/identity"
	"github.com/habitat-network/chrome-devproxy/internal/logging"
	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/habitat-network/chrome-devproxy/internal/utils"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer reports the path, host and identity header it received.
func echoServer(t *testing.T, name string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", name)
		w.Header().Set("X-Seen-Host", r.Host)
		w.Header().Set("X-Seen-Identity", r.Header.Get(identity.Header))
		w.Header().Set("X-Seen-Dev", r.Header.Get("X-Dev"))
		fmt.Fprint(w, r.URL.Path)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestProxyFirstMatchWins(t *testing.T) {
	api := echoServer(t, "api")
	chrome := echoServer(t, "chrome")

	routeMap := routes.RouteMap{}.
		Add("/api/chrome-service", routes.TargetValue(chrome.URL)).
		Add("/api", routes.TargetValue(api.URL))
	rules := routes.BuildRoutes(routeMap, api.URL, nil)

	s, err := NewProxyServer(logging.NewLogger(zerolog.DebugLevel), rules)
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()

	resp := get(t, proxy.URL+"/api/chrome-service/v1/user", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "chrome", resp.Header.Get("X-Backend"))
	assert.Equal(t, "/api/chrome-service/v1/user", body(t, resp))
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	resp = get(t, proxy.URL+"/api/rbac/v1/access", nil)
	assert.Equal(t, "api", resp.Header.Get("X-Backend"))

	req := httptest.NewRequest(http.MethodGet, "/api/chrome-service/x", nil)
	require.NotNil(t, s.Match(req))
	assert.Equal(t, "/api/chrome-service", s.Match(req).Match)

	resp = get(t, proxy.URL+"/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProxyInjectsIdentity(t *testing.T) {
	backend := echoServer(t, "backend")
	synth := identity.NewSynthesizer(identity.Options{})
	rules := routes.BuildRoutes(routes.RouteMap{}.Add("/api", routes.TargetValue(backend.URL)), "", synth.Transform)

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), rules)
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()

	token, err := devtoken.Mint([]byte("k"), devtoken.Params{Username: "alice", Email: "a@x.com"})
	require.NoError(t, err)

	resp := get(t, proxy.URL+"/api/x", http.Header{"Cookie": {"id_jwt=" + token}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	env, err := identity.Decode(resp.Header.Get("X-Seen-Identity"))
	require.NoError(t, err)
	assert.Equal(t, "alice", env.Identity.OrgID)

	resp = get(t, proxy.URL+"/api/x", nil)
	assert.Empty(t, resp.Header.Get("X-Seen-Identity"))
}

func TestProxyChangeOriginAndHeaders(t *testing.T) {
	backend := echoServer(t, "backend")
	backendURL, err := url.Parse(backend.URL)
	require.NoError(t, err)
	keepHost := false

	routeMap := routes.RouteMap{}.
		Add("/keep", routes.OverrideValue(&routes.RouteOverride{
			Host:         backend.URL,
			ChangeOrigin: &keepHost,
			Headers:      map[string]string{"X-Dev": "1"},
		})).
		Add("/change", routes.TargetValue(backend.URL))

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), routes.BuildRoutes(routeMap, "", nil))
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	resp := get(t, proxy.URL+"/keep", nil)
	assert.Equal(t, proxyURL.Host, resp.Header.Get("X-Seen-Host"))
	assert.Equal(t, "1", resp.Header.Get("X-Seen-Dev"))

	resp = get(t, proxy.URL+"/change", nil)
	assert.Equal(t, backendURL.Host, resp.Header.Get("X-Seen-Host"))
	assert.Empty(t, resp.Header.Get("X-Seen-Dev"))
}

func TestProxyPathRewrite(t *testing.T) {
	backend := echoServer(t, "backend")
	routeMap := routes.RouteMap{}.Add("/beta/api", routes.OverrideValue(&routes.RouteOverride{
		Host:        backend.URL,
		PathRewrite: map[string]string{"^/beta": ""},
	}))

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), routes.BuildRoutes(routeMap, "", nil))
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()

	resp := get(t, proxy.URL+"/beta/api/v1", nil)
	assert.Equal(t, "/api/v1", body(t, resp))
}

func TestProxyAutoRewrite(t *testing.T) {
	var backendHost string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://"+backendHost+"/landing", http.StatusFound)
	}))
	defer backend.Close()
	u, err := url.Parse(backend.URL)
	require.NoError(t, err)
	backendHost = u.Host

	noRewrite := false
	routeMap := routes.RouteMap{}.
		Add("/rewrite", routes.TargetValue(backend.URL)).
		Add("/raw", routes.OverrideValue(&routes.RouteOverride{Host: backend.URL, AutoRewrite: &noRewrite}))

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), routes.BuildRoutes(routeMap, "", nil))
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()
	proxyURL, err := url.Parse(proxy.URL)
	require.NoError(t, err)

	resp := get(t, proxy.URL+"/rewrite", nil)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "http://"+proxyURL.Host+"/landing", resp.Header.Get("Location"))

	resp = get(t, proxy.URL+"/raw", nil)
	assert.Equal(t, "http://"+backendHost+"/landing", resp.Header.Get("Location"))
}

func TestProxyWebSocketDisabled(t *testing.T) {
	backend := echoServer(t, "backend")
	ws := false
	routeMap := routes.RouteMap{}.Add("/socket", routes.OverrideValue(&routes.RouteOverride{Host: backend.URL, WebSocket: &ws}))

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), routes.BuildRoutes(routeMap, "", nil))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/socket", nil)
	r.Header.Set("Connection", "Upgrade")
	r.Header.Set("Upgrade", "websocket")
	s.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProxyUpstreamDown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	target := backend.URL
	backend.Close()

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), routes.BuildRoutes(routes.RouteMap{}.Add("/", routes.TargetValue(target)), "", nil))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil).WithContext(context.Background()))
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var msg utils.ErrorMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msg))
	assert.Equal(t, target, msg.Target)
	assert.Equal(t, w.Header().Get(RequestIDHeader), msg.RequestID)
	assert.NotEmpty(t, msg.RequestID)
	assert.NotEmpty(t, msg.Error)
}

func TestProxyStaticFallback(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("Hello, World!"), 0o600))

	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), nil, WithStaticDir(dir))
	require.NoError(t, err)
	proxy := httptest.NewServer(s)
	defer proxy.Close()

	resp := get(t, proxy.URL+"/hello.txt", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Hello, World!", body(t, resp))

	resp = get(t, proxy.URL+"/missing.js", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewProxyServerRejectsBadTarget(t *testing.T) {
	_, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), []*routes.Rule{{Match: "/x", Target: "not a url"}})
	require.Error(t, err)

	_, err = NewProxyServer(logging.NewLogger(zerolog.InfoLevel), []*routes.Rule{{
		Match:       "/x",
		Target:      "http://ok",
		PathRewrite: map[string]string{"(": ""},
	}})
	require.Error(t, err)
}

func TestListenerWithoutTailscale(t *testing.T) {
	s, err := NewProxyServer(logging.NewLogger(zerolog.InfoLevel), nil)
	require.NoError(t, err)
	ln, err := s.Listener("127.0.0.1:0", TailscaleOptions{})
	require.NoError(t, err)
	require.NoError(t, ln.Close())
}

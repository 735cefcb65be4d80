package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/habitat-network/chrome-devproxy/internal/identity"
	"github.com/habitat-network/chrome-devproxy/internal/platform"
	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	viper "github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort                = "1337"
	DefaultLocalAppHost        = "localhost"
	DefaultEnvironment         = "stage"
	DefaultConfigName          = "devproxy"
	DefaultTailscaleHostname   = "chrome-devproxy"
	EnvPrefix                  = "CHROME"
	defaultTailscaleStateDir   = "tailscale_state"
	defaultConfigDirectoryName = ".chrome"
)

func loadEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"target":                 "TARGET",
		"local_apps":             "LOCAL_APPS",
		"default_local_app_host": "DEFAULT_LOCAL_APP_HOST",
		"probe_timeout":          "PROBE_TIMEOUT",
		"port":                   "PORT",
		"static_dir":             "STATIC_DIR",
		"https_certs":            "HTTPS_CERTS",
		"debug":                  "DEBUG",
		"environment":            "ENVIRONMENT",
		"sso_url":                "SSO_URL",
		"tailscale.authkey":      "TS_AUTHKEY",
		"tailscale.hostname":     "TS_HOSTNAME",
		"telemetry":              "TELEMETRY",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, EnvPrefix+"_"+env); err != nil {
			return err
		}
	}

	v.SetDefault("port", DefaultPort)
	v.SetDefault("default_local_app_host", DefaultLocalAppHost)
	v.SetDefault("probe_timeout", routes.DefaultProbeTimeout)
	v.SetDefault("environment", DefaultEnvironment)
	v.SetDefault("debug", false)
	v.SetDefault("telemetry", false)
	v.SetDefault("tailscale.hostname", DefaultTailscaleHostname)
	return nil
}

func loadViperConfig(configFile string) (*viper.Viper, error) {
	// A missing .env file is fine, anything else is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	if err := loadEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		if dir, err := configDir(); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// Without an explicit file, env and flags alone are a valid configuration.
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, err
		}
		log.Debug().Msg("no config file found, using environment only")
	}
	return v, nil
}

// Config is built once at startup and handed to every component that needs it.
type Config struct {
	viper *viper.Viper
	// source is the raw YAML the config was read from, used to keep route order.
	source []byte
}

// NewConfig loads configuration from configFile (or the default search path), the
// environment and a .env file in the working directory.
func NewConfig(configFile string) (*Config, error) {
	v, err := loadViperConfig(configFile)
	if err != nil {
		return nil, err
	}

	config, err := NewConfigFromViper(v)
	if err != nil {
		return nil, err
	}

	log.Debug().Msgf("Loaded config: file: %q target: %s local apps: %v", v.ConfigFileUsed(), config.Target(), config.LocalApps())
	return config, nil
}

func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	config := &Config{viper: v}
	if path := v.ConfigFileUsed(); path != "" {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		config.source = source
	}
	return config, nil
}

// NewTestConfig returns a Config read from an in-memory YAML document.
func NewTestConfig(doc string) (*Config, error) {
	v := viper.New()
	if err := loadEnv(v); err != nil {
		return nil, err
	}
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(doc)); err != nil {
		return nil, err
	}
	return &Config{viper: v, source: []byte(doc)}, nil
}

// Set overrides a key, e.g. from a command line flag.
func (c *Config) Set(key string, value any) {
	c.viper.Set(key, value)
}

func (c *Config) Target() string {
	return c.viper.GetString("target")
}

// LocalApps returns the local app descriptors, accepting either a comma separated string
// or a list.
func (c *Config) LocalApps() []string {
	switch apps := c.viper.Get("local_apps").(type) {
	case string:
		return routes.SplitLocalApps(apps)
	case []string:
		return apps
	case []any:
		out := make([]string, 0, len(apps))
		for _, app := range apps {
			out = append(out, fmt.Sprint(app))
		}
		return out
	default:
		return nil
	}
}

func (c *Config) DefaultLocalAppHost() string {
	return c.viper.GetString("default_local_app_host")
}

func (c *Config) ProbeTimeout() time.Duration {
	return c.viper.GetDuration("probe_timeout")
}

func (c *Config) Port() string {
	return c.viper.GetString("port")
}

// StaticDir is served for requests that match no rule.
func (c *Config) StaticDir() string {
	return c.viper.GetString("static_dir")
}

// HTTPSCerts is a directory containing fullchain.pem and privkey.pem.
func (c *Config) HTTPSCerts() string {
	return c.viper.GetString("https_certs")
}

func (c *Config) LogLevel() zerolog.Level {
	if c.viper.GetBool("debug") {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func (c *Config) Environment() string {
	return c.viper.GetString("environment")
}

func (c *Config) SSOURL() string {
	return c.viper.GetString("sso_url")
}

func (c *Config) SSORoutes() (platform.SSORoutes, error) {
	if !c.viper.IsSet("sso_routes") {
		return platform.DefaultSSORoutes, nil
	}
	var ssoRoutes platform.SSORoutes
	if err := c.viper.UnmarshalKey("sso_routes", &ssoRoutes); err != nil {
		return nil, fmt.Errorf("decoding sso_routes: %w", err)
	}
	return ssoRoutes, nil
}

// IdentityOptions are the identity overrides applied to every proxied request.
func (c *Config) IdentityOptions() (identity.Options, error) {
	var opts identity.Options
	if err := c.viper.UnmarshalKey("identity", &opts); err != nil {
		return opts, fmt.Errorf("decoding identity: %w", err)
	}
	return opts, nil
}

func (c *Config) TelemetryEnabled() bool {
	return c.viper.GetBool("telemetry")
}

func (c *Config) TailscaleAuthkey() string {
	return c.viper.GetString("tailscale.authkey")
}

func (c *Config) TailscaleHostname() string {
	return c.viper.GetString("tailscale.hostname")
}

func (c *Config) TailscaleStatePath() string {
	dir, err := configDir()
	if err != nil {
		return defaultTailscaleStateDir
	}
	return filepath.Join(dir, defaultTailscaleStateDir)
}

// Routes returns the configured route map. When the config came from a YAML document the
// document order is kept, otherwise keys are sorted.
func (c *Config) Routes() (routes.RouteMap, error) {
	if len(c.source) > 0 {
		return routesFromYAML(c.source)
	}

	raw := c.viper.GetStringMap("routes")
	if nested, ok := raw["routes"].(map[string]any); ok {
		raw = nested
	}
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var routeMap routes.RouteMap
	for _, k := range keys {
		value, err := decodeRouteValue(raw[k])
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", k, err)
		}
		routeMap = routeMap.Add(k, value)
	}
	return routeMap, nil
}

// RouteOptions assembles everything the route compiler needs except the request transform.
func (c *Config) RouteOptions() (routes.Options, error) {
	routeMap, err := c.Routes()
	if err != nil {
		return routes.Options{}, err
	}
	return routes.Options{
		Target:              c.Target(),
		Routes:              routeMap,
		LocalApps:           c.LocalApps(),
		DefaultLocalAppHost: c.DefaultLocalAppHost(),
		Prober:              routes.NewHTTPProber(c.ProbeTimeout()),
	}, nil
}

func routesFromYAML(source []byte) (routes.RouteMap, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(source, &doc); err != nil {
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	node := mappingValue(doc.Content[0], "routes")
	if node == nil {
		return nil, nil
	}
	// Tolerate configs that nest the map one level deeper under routes.routes.
	if nested := mappingValue(node, "routes"); nested != nil && nested.Kind == yaml.MappingNode {
		node = nested
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("routes must be a mapping")
	}

	var routeMap routes.RouteMap
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var raw any
		if err := node.Content[i+1].Decode(&raw); err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
		value, err := decodeRouteValue(raw)
		if err != nil {
			return nil, fmt.Errorf("route %q: %w", key, err)
		}
		routeMap = routeMap.Add(key, value)
	}
	return routeMap, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func configDir() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", err
	}
	return filepath.Join(usr.HomeDir, defaultConfigDirectoryName), nil
}

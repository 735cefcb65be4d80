package main

import (
	"fmt"
	"strings"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
)

var (
	fDebug               = "debug"
	fConfig              = "config"
	fTarget              = "target"
	fPort                = "port"
	fLocalApps           = "local-apps"
	fDefaultLocalAppHost = "default-local-app-host"
	fStaticDir           = "static-dir"
	fHttpsCerts          = "https-certs"
	fProbeTimeout        = "probe-timeout"
	fSkipProbe           = "skip-probe"
	fTelemetry           = "telemetry"

	fUsername   = "username"
	fEmail      = "email"
	fName       = "name"
	fLocale     = "locale"
	fSigningKey = "signing-key"
	fCookie     = "cookie"
	fHostname   = "hostname"
	fToken      = "token"
)
var profiles []string

// configKeys maps flags to the config keys they override when set.
var configKeys = map[string]string{
	fDebug:               "debug",
	fTarget:              "target",
	fPort:                "port",
	fLocalApps:           "local_apps",
	fDefaultLocalAppHost: "default_local_app_host",
	fStaticDir:           "static_dir",
	fHttpsCerts:          "https_certs",
	fProbeTimeout:        "probe_timeout",
	fTelemetry:           "telemetry",
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    fDebug,
			Usage:   "Enable debug logging",
			Sources: getSources(fDebug),
		},
		&cli.StringSliceFlag{
			Name:        "profile",
			Usage:       "YAML profile files that specify flags. Can be stacked from highest precedence to lowest.",
			TakesFile:   true,
			Destination: &profiles,
		},
		&cli.StringFlag{
			Name:      fConfig,
			Usage:     "Path to the devproxy config file. Defaults to devproxy.yml in the working directory or ~/.chrome",
			TakesFile: true,
			Sources:   getSources(fConfig),
		},
		&cli.StringFlag{
			Name:    fTarget,
			Usage:   "The console environment to proxy requests to, e.g. https://console.stage.redhat.com",
			Sources: getSources(fTarget),
		},
	}
}

func routeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    fLocalApps,
			Usage:   "Comma separated local apps, each name[:port[~protocol]]",
			Sources: getSources(fLocalApps),
		},
		&cli.StringFlag{
			Name:    fDefaultLocalAppHost,
			Usage:   "Host local apps are expected on",
			Sources: getSources(fDefaultLocalAppHost),
		},
		&cli.DurationFlag{
			Name:    fProbeTimeout,
			Usage:   "How long to wait for a local app to answer its liveness probe",
			Sources: getSources(fProbeTimeout),
		},
	}
}

func serveFlags() []cli.Flag {
	return append(routeFlags(),
		&cli.StringFlag{
			Name:    fPort,
			Usage:   "The port on which to run the proxy",
			Sources: getSources(fPort),
		},
		&cli.StringFlag{
			Name:    fStaticDir,
			Usage:   "Directory served for requests that match no route, usually the built shell bundle",
			Sources: getSources(fStaticDir),
		},
		&cli.StringFlag{
			Name:    fHttpsCerts,
			Usage:   "The directory in which TLS certs can be found. Should contain fullchain.pem and privkey.pem",
			Sources: getSources(fHttpsCerts),
		},
		&cli.BoolFlag{
			Name:    fTelemetry,
			Usage:   "Export traces and metrics over OTLP/HTTP",
			Sources: getSources(fTelemetry),
		},
	)
}

func getSources(name string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar("CHROME_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_"))),
		&profilesSource{name: name},
	)
}

type profilesSource struct {
	name string
}

// GoString implements cli.ValueSource.
func (ps *profilesSource) GoString() string {
	return fmt.Sprintf("&profilesSource{name:%[1]q}", ps.name)
}

func (ps *profilesSource) String() string {
	return strings.Join(profiles, ",")
}

func (ps *profilesSource) Lookup() (string, bool) {
	sources := cli.ValueSourceChain{
		Chain: []cli.ValueSource{},
	}
	for i := range profiles {
		sources.Chain = append(
			sources.Chain,
			yaml.YAML(ps.name, altsrc.NewStringPtrSourcer(&profiles[i])),
		)
	}
	return sources.Lookup()
}

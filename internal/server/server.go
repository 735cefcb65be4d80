package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

const (
	CertFile = "fullchain.pem"
	KeyFile  = "privkey.pem"
)

// LoadCertDir reads the certificate pair the proxy serves HTTPS with. An empty dir returns a
// nil config and the proxy stays on plain HTTP.
func LoadCertDir(dir string) (*tls.Config, error) {
	if dir == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	if err != nil {
		return nil, fmt.Errorf("loading https certs from %s: %w", dir, err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
		// Browsers talking to the proxy negotiate h2 when offered.
		NextProtos: []string{"h2", "http/1.1"},
	}, nil
}

type serverOptions struct {
	listener  net.Listener
	tlsConfig *tls.Config
}

type Option func(*serverOptions)

// WithTLS serves over TLS with config. A nil config is ignored.
func WithTLS(config *tls.Config) Option {
	return func(so *serverOptions) {
		so.tlsConfig = config
	}
}

func WithListener(listener net.Listener) Option {
	return func(so *serverOptions) {
		so.listener = listener
	}
}

// ServeFn returns a callback serving srv that can be run in a separate goroutine.
// It returns nil once the server is shut down.
func ServeFn(srv *http.Server, name string, opts ...Option) func() error {
	options := &serverOptions{}
	for _, o := range opts {
		o(options)
	}
	return func() error {
		ln := options.listener
		if ln == nil {
			var err error
			ln, err = net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
		}
		defer ln.Close()

		scheme := "http"
		if options.tlsConfig != nil {
			srv.TLSConfig = options.tlsConfig
			scheme = "https"
		}
		log.Info().Str("addr", ln.Addr().String()).Msgf("Starting %s on %s://%s", name, scheme, ln.Addr())

		var err error
		if srv.TLSConfig != nil {
			// Certificates are already loaded into the config.
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Msgf("%s closed abnormally", name)
			return err
		}
		return nil
	}
}

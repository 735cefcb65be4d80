package main

import (
	"context"
	"fmt"

	"github.com/habitat-network/chrome-devproxy/internal/devtoken"
	"github.com/habitat-network/chrome-devproxy/internal/platform"
	"github.com/habitat-network/chrome-devproxy/internal/routes"
	"github.com/habitat-network/chrome-devproxy/internal/userconfig"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const defaultSigningKey = "chrome-devproxy"

func printRoutes(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var prober routes.Prober
	if cmd.Bool(fSkipProbe) {
		prober = routes.ProberFunc(func(context.Context, string) error { return nil })
	}
	rules, err := compileRules(ctx, cfg, prober)
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.Root().Writer)
	defer enc.Close()
	return enc.Encode(rules)
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Print an id token the proxy turns into an identity header",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: fUsername, Usage: "preferred_username claim", Required: true},
			&cli.StringFlag{Name: fEmail, Usage: "email claim"},
			&cli.StringFlag{Name: fName, Usage: "name claim"},
			&cli.StringFlag{Name: fLocale, Usage: "locale claim", Value: "en_US"},
			&cli.StringFlag{
				Name:    fSigningKey,
				Usage:   "HMAC key the token is signed with. The proxy does not verify it",
				Value:   defaultSigningKey,
				Sources: getSources(fSigningKey),
			},
			&cli.BoolFlag{Name: fCookie, Usage: "Print as an id_jwt cookie"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			token, err := devtoken.Mint([]byte(cmd.String(fSigningKey)), devtoken.Params{
				Username: cmd.String(fUsername),
				Email:    cmd.String(fEmail),
				Name:     cmd.String(fName),
				Locale:   cmd.String(fLocale),
			})
			if err != nil {
				return err
			}
			if cmd.Bool(fCookie) {
				token = "id_jwt=" + token
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, token)
			return err
		},
	}
}

func ssoURLCommand() *cli.Command {
	return &cli.Command{
		Name:  "sso-url",
		Usage: "Print the SSO server the console uses for a hostname",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: fHostname, Usage: "Console hostname", Value: "console.stage.redhat.com"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ssoRoutes, err := cfg.SSORoutes()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.Root().Writer, platform.PlatformURL(ssoRoutes, cmd.String(fHostname), cfg.SSOURL()))
			return err
		},
	}
}

func userConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "user-config",
		Usage: "Fetch the chrome-service user config from the target",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: fToken, Usage: "Bearer token", Sources: getSources(fToken)},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Target() == "" {
				return fmt.Errorf("a target is required")
			}
			userConfig, err := userconfig.NewClient(cfg.Target(), nil).Get(ctx, cmd.String(fToken))
			if err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.Root().Writer)
			defer enc.Close()
			return enc.Encode(userConfig.Data)
		},
	}
}

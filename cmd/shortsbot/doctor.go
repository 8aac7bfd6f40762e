package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"shortsbot/internal/channel"
	"shortsbot/internal/config"
	"shortsbot/internal/media"
	"shortsbot/internal/registry"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your shortsbot setup",
		Long: `Verifies that the configuration, Telegram token, user registry,
proxy and webhook port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "shortsbot doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			d := &doctor{out: out}

			cfgPath := resolveConfigPath()
			if cfgPath == "" {
				d.warn("Config file", "none found, using defaults and environment")
			} else {
				d.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig()
			if err != nil {
				d.fail("Config validation", err.Error())
				return d.summary()
			}
			d.pass("Config validation", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			d.checkTelegram(cfg)
			d.checkRegistry(ctx, cfg)
			d.checkProxy(ctx, cfg)

			if err := checkPort(cfg.Webhook.Port); err != nil {
				d.warn("Webhook port", fmt.Sprintf("port %d may be in use: %v", cfg.Webhook.Port, err))
			} else {
				d.pass("Webhook port", fmt.Sprintf(":%d available", cfg.Webhook.Port))
			}
			if cfg.Webhook.PublicURL != "" && cfg.Webhook.SecretToken == "" {
				d.warn("Webhook secret", "publicUrl set without secretToken, requests are not authenticated")
			}

			return d.summary()
		},
	}
}

type doctor struct {
	out                    io.Writer
	passed, failed, warned int
}

func (d *doctor) checkTelegram(cfg *config.Config) {
	if cfg.Telegram.Token == "" {
		d.fail("Telegram token", "not set (BOT_TOKEN or telegram.token)")
		return
	}
	tg, err := channel.NewTelegram(channel.TelegramConfig{
		Token:       cfg.Telegram.Token,
		APIEndpoint: cfg.Telegram.APIEndpoint,
		Logger:      logger,
	})
	if err != nil {
		d.fail("Telegram token", err.Error())
		return
	}
	d.pass("Telegram token", "@"+tg.Username())
}

func (d *doctor) checkRegistry(ctx context.Context, cfg *config.Config) {
	store, err := registry.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		d.fail("User registry", err.Error())
		return
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		d.fail("User registry", fmt.Sprintf("cannot ping: %v", err))
		return
	}
	schema, _ := registry.GetSchemaVersion(store.DB())
	n, err := store.CountUsers(ctx)
	if err != nil {
		d.fail("User registry", err.Error())
		return
	}
	d.pass("User registry", fmt.Sprintf("%s, schema v%d, %d users", store.Driver(), schema, n))
}

func (d *doctor) checkProxy(ctx context.Context, cfg *config.Config) {
	if !cfg.Media.UseProxy {
		d.pass("Proxy", "disabled")
		return
	}
	client, err := media.NewHTTPClient(media.HTTPClientConfig{
		Timeout:  10 * time.Second,
		UseProxy: true,
		ProxyURL: cfg.Media.ProxyURL,
		NoProxy:  cfg.Media.NoProxy,
	})
	if err != nil {
		d.fail("Proxy", err.Error())
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://www.youtube.com/", nil)
	if err != nil {
		d.fail("Proxy", err.Error())
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		d.fail("Proxy", fmt.Sprintf("youtube.com unreachable: %v", err))
		return
	}
	resp.Body.Close()
	d.pass("Proxy", fmt.Sprintf("youtube.com reachable (%s)", resp.Status))
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.out, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		fmt.Fprintf(d.out, "\nPlease fix the failed checks before running shortsbot.\n")
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	if d.warned > 0 {
		fmt.Fprintf(d.out, "\nshortsbot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(d.out, "\nAll checks passed! shortsbot is ready to run.\n")
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}

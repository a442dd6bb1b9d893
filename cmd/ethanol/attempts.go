// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/audit"
	"github.com/holomush/ethanol/internal/observability"
)

func newAttemptsCmd(opts *rootOptions) *cobra.Command {
	var (
		email string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "attempts",
		Short: "List recent login attempts",
		Long: `List recent login attempts, newest first. With --email the listing is
filtered to one address and the current throttle advice for it is shown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				attempts, err := a.attempts.ListRecent(ctx, email, limit)
				if err != nil {
					return err
				}
				result := struct {
					Attempts []attemptView          `yaml:"attempts"`
					Throttle *audit.RateLimitResult `yaml:"throttle,omitempty"`
				}{Attempts: make([]attemptView, 0, len(attempts))}
				for _, at := range attempts {
					result.Attempts = append(result.Attempts, newAttemptView(at))
				}
				if email != "" {
					advice, err := audit.Throttle(ctx, a.attempts, email, a.cfg.Audit.ThrottleWindow, time.Now())
					if err != nil {
						return err
					}
					result.Throttle = &advice
				}

				return a.out.print(result, func(w io.Writer) {
					for _, v := range result.Attempts {
						v.text(w)
					}
					if t := result.Throttle; t != nil {
						switch {
						case t.IsLockedOut:
							fmt.Fprintf(w, "locked out for %s after %d failures\n", t.LockoutRemaining.Round(time.Second), t.Failures)
						case t.Failures > 0:
							fmt.Fprintf(w, "%d recent failures, delay %s, captcha %t\n", t.Failures, t.Delay, t.RequiresCaptcha)
						}
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "only attempts for this email")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum attempts to list (0 for all)")
	return cmd
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Maintain the login attempt log",
	}
	cmd.AddCommand(newAuditReplayCmd(opts))
	cmd.AddCommand(newAuditServeCmd(opts))
	return cmd
}

func newAuditReplayCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Re-submit attempts buffered in the write-ahead log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				n, err := a.auditor.ReplayWAL(ctx)
				if err != nil {
					return err
				}
				result := struct {
					Replayed int    `yaml:"replayed"`
					WAL      string `yaml:"wal"`
				}{n, a.auditor.WALPath()}
				return a.out.print(result, func(w io.Writer) {
					fmt.Fprintf(w, "replayed %d attempts from %s\n", result.Replayed, result.WAL)
				})
			})
		},
	}
}

func newAuditServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health checks while replaying the WAL",
		Long: `Serve Prometheus metrics and health endpoints on the configured metrics
address, replaying the write-ahead log every audit.replay_interval until
interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				if a.cfg.Metrics.Addr == "" {
					return oops.Code("CONFIG_INVALID").With("key", "metrics.addr").
						Errorf("metrics.addr is required for audit serve")
				}
				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()

				server := observability.NewServer(a.cfg.Metrics.Addr, nil, a.ping, a.logger)
				errCh, err := server.Start()
				if err != nil {
					return err
				}
				a.auditor.Start(ctx, a.cfg.Audit.ReplayInterval)
				fmt.Fprintf(cmd.OutOrStdout(), "serving on %s\n", server.Addr())

				var serveErr error
				select {
				case <-ctx.Done():
					a.logger.Info("received shutdown signal")
				case err, ok := <-errCh:
					if ok {
						serveErr = oops.Code("SERVE_FAILED").Wrap(err)
					}
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Stop(shutdownCtx); err != nil && serveErr == nil {
					serveErr = err
				}
				return serveErr
			})
		},
	}
}

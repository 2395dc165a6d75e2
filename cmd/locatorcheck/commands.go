package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"locatorcheck/internal/script"
	"locatorcheck/internal/server"
	"locatorcheck/pkg/model"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the verification API and the same-origin proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				cfg.Server.Listen = listen
			}
			a, err := newApp(cfg, true)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(cfg.Server, a.svc, a.proxy, a.log)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return srv.Run(gctx) })
			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.log.Info("正在关闭 HTTP 服务")
				return srv.Shutdown(sctx)
			})
			if a.snapshots != nil && cfg.Proxy.CacheTTL() > 0 {
				g.Go(func() error {
					t := time.NewTicker(cfg.Proxy.CacheTTL())
					defer t.Stop()
					for {
						select {
						case <-gctx.Done():
							return nil
						case <-t.C:
							n, err := a.snapshots.Purge(gctx, cfg.Proxy.CacheTTL())
							if err != nil {
								a.log.Err(err, "清理过期快照失败")
								continue
							}
							if n > 0 {
								a.log.Debug("已清理过期快照", "count", n)
							}
						}
					}
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	return cmd
}

func verifyCmd() *cobra.Command {
	var req model.VerificationRequest
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Highlight a locator inside the host page's iframe",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			out, err := a.svc.RequestVerification(ctx, req)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if out.Error != "" {
				return fmt.Errorf("%s", out.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.TargetURL, "url", "", "target page url shown in the iframe")
	cmd.Flags().StringVar(&req.Locator, "locator", "", "XPath locator to verify")
	cmd.Flags().BoolVar(&req.Validated, "validated", false, "locator was validated by the generator")
	cmd.Flags().BoolVar(&req.AllowProxy, "allow-proxy", false, "allow reloading the iframe through the proxy")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("locator")
	return cmd
}

func scriptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "script <locator>",
		Short: "Print the verification script for manual execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := script.CheckLocator(args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), script.Synthesize(args[0]))
			return err
		},
	}
	return cmd
}

func targetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List browser pages visible over DevTools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			a, err := newApp(cfg, false)
			if err != nil {
				return err
			}
			defer a.Close()

			list, err := a.host.Targets(cmd.Context())
			if err != nil {
				return err
			}
			for _, t := range list {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.URL, t.Title)
			}
			return nil
		},
	}
}

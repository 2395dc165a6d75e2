package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"locatorcheck/internal/cdp"
	"locatorcheck/internal/config"
	"locatorcheck/internal/delivery"
	"locatorcheck/internal/logger"
	"locatorcheck/internal/manual"
	"locatorcheck/internal/proxy"
	"locatorcheck/internal/service"
	"locatorcheck/internal/storage"
	"locatorcheck/pkg/api"
)

// app 进程内组装好的组件
type app struct {
	cfg       *config.Config
	log       logger.Logger
	host      *cdp.Manager
	svc       api.Service
	proxy     *proxy.Server
	snapshots *storage.SnapshotStore
	closers   []func() error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

func newLogger(cfg *config.Config) logger.Logger {
	return logger.New(logger.Options{
		Level:  cfg.Log.Level,
		Writer: cfg.Log.Writer,
		File:   cfg.Log.File,
	})
}

// newApp 按配置组装服务，withProxyServer 为 true 时同时打开快照库与代理服务
func newApp(cfg *config.Config, withProxyServer bool) (*app, error) {
	a := &app{cfg: cfg, log: newLogger(cfg)}

	a.host = cdp.New(cdp.Options{
		Host:         cfg.Host,
		ProxyBaseURL: cfg.ProxyBaseURL(),
		LoadTimeout:  cfg.Delivery.LoadTimeout(),
		Logger:       a.log,
	})
	a.closers = append(a.closers, a.host.Close)

	var px delivery.Proxy
	if base := cfg.ProxyBaseURL(); base != "" {
		c, err := proxy.NewClient(base, &http.Client{Timeout: cfg.Delivery.ProbeTimeout()})
		if err != nil {
			return nil, err
		}
		px = c
	}

	presenter := manual.New(manual.Config{
		Opener:     opener(cfg.Manual.Opener, a.host),
		OpenTarget: cfg.Manual.OpenTarget,
		Logger:     a.log,
	})

	if withProxyServer {
		var cache proxy.Cache
		if cfg.Sqlite.Dsn != "" {
			db, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, a.log)
			if err != nil {
				return nil, fmt.Errorf("open snapshot store: %w", err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, sqlDB.Close)
			a.snapshots = storage.NewSnapshotStore(db)
			cache = a.snapshots
		}
		a.proxy = proxy.NewServer(cfg.Proxy, cache, a.log)
	}

	a.svc = api.NewService(service.Config{
		HostOrigin: cfg.Host.Origin,
		Host:       a.host,
		Delivery: delivery.Config{
			LoadTimeout:    cfg.Delivery.LoadTimeout(),
			MessageTimeout: cfg.Delivery.MessageTimeout(),
			ProbeTimeout:   cfg.Delivery.ProbeTimeout(),
			Proxy:          px,
			Presenter:      presenter,
		},
	}, a.log)
	a.closers = append(a.closers, a.svc.Close)
	return a, nil
}

// opener 按配置选择打开新标签页的方式
func opener(kind string, host *cdp.Manager) manual.Opener {
	switch kind {
	case "system":
		return manual.SystemOpener
	case "none":
		return nil
	default:
		return manual.OpenerFunc(host.OpenTab)
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Err(err, "关闭组件失败")
		}
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"github.com/frontcache/frontcache/internal/config"
	"github.com/frontcache/frontcache/internal/logging"
	"github.com/frontcache/frontcache/internal/metrics"
	"github.com/frontcache/frontcache/internal/pagecache"
	"github.com/frontcache/frontcache/internal/proxy"
	"github.com/frontcache/frontcache/internal/server"
	"github.com/frontcache/frontcache/internal/server/routes"
	"github.com/frontcache/frontcache/internal/version"
)

const configEnv = "FRONTCACHE_CONFIG"

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	os.Exit(run(os.Args))
}

// run 执行 CLI 并返回退出码，方便测试：参数错误返回 2，运行失败返回 1。
func run(args []string) int {
	cmd := newRootCommand()
	if err := cmd.Run(context.Background(), args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintln(stdErr, msg)
			}
			return exitErr.ExitCode()
		}
		fmt.Fprintln(stdErr, err.Error())
		return 2
	}
	return 0
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:        "frontcache",
		Usage:       "on-disk HTML page cache in front of an origin site",
		Writer:      stdOut,
		ErrWriter:   stdErr,
		HideVersion: true,
		// 退出码由 run 统一处理，避免 cli 直接调用 os.Exit。
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file path",
				Sources: cli.NewValueSourceChain(
					cli.EnvVar(configEnv),
				),
				Value: "config.toml",
			},
			&cli.BoolFlag{
				Name:        "version",
				Aliases:     []string{"v"},
				Usage:       "print version and exit",
				HideDefault: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				printVersion()
				return nil
			}
			return serveAction(ctx, cmd)
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the caching HTTP front",
				Action: serveAction,
			},
			{
				Name:   "check-config",
				Usage:  "validate the config file and exit",
				Action: checkConfigAction,
			},
			flushCommand(),
			{
				Name:   "list",
				Usage:  "list cached pages and fragments",
				Action: listAction,
			},
			{
				Name:  "version",
				Usage: "print version",
				Action: func(context.Context, *cli.Command) error {
					printVersion()
					return nil
				},
			},
		},
	}
}

// loadRuntime 读取配置并初始化日志，所有子命令共用。
func loadRuntime(cmd *cli.Command) (*config.Config, *logrus.Logger, string, error) {
	path := cmd.String("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, path, cli.Exit(fmt.Sprintf("加载配置失败: %v", err), 1)
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		return nil, nil, path, cli.Exit(fmt.Sprintf("初始化日志失败: %v", err), 1)
	}
	return cfg, logger, path, nil
}

func checkConfigAction(_ context.Context, cmd *cli.Command) error {
	cfg, logger, path, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	fields := logging.BaseFields("check_config", path)
	fields["rules"] = len(cfg.Rules)
	fields["cache_root"] = cfg.Global.FrontendRoot()
	fields["upstream"] = cfg.Global.Upstream
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")
	return nil
}

func serveAction(_ context.Context, cmd *cli.Command) error {
	cfg, logger, path, err := loadRuntime(cmd)
	if err != nil {
		return err
	}

	// 启动顺序：配置 → 指标 → 页面缓存 → 规则 → 回源 → Fiber server。
	var (
		recorder      pagecache.Recorder
		metricsHandle *metrics.Collector
	)
	if cfg.Global.MetricsEnabled {
		metricsHandle = metrics.New(true)
		recorder = metricsHandle
	}

	pc, err := server.NewPageCache(cfg, recorder)
	if err != nil {
		return cli.Exit(fmt.Sprintf("初始化页面缓存失败: %v", err), 1)
	}

	rules, err := server.NewRuleSet(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("构建缓存规则失败: %v", err), 1)
	}

	origin, err := proxy.NewHandler(server.NewUpstreamClient(cfg), logger, cfg.Global.Upstream)
	if err != nil {
		return cli.Exit(fmt.Sprintf("初始化回源失败: %v", err), 1)
	}

	fields := logging.BaseFields("startup", path)
	fields["rules"] = len(cfg.Rules)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["cache_root"] = pc.Root()
	fields["upstream"] = cfg.Global.Upstream
	fields["metrics"] = cfg.Global.MetricsEnabled
	fields["admin_token"] = cfg.Global.AdminToken != ""
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(cfg, pc, rules, origin, metricsHandle, logger); err != nil {
		return cli.Exit(fmt.Sprintf("HTTP 服务启动失败: %v", err), 1)
	}
	return nil
}

func startHTTPServer(
	cfg *config.Config,
	pc *pagecache.PageCache,
	rules *server.RuleSet,
	origin server.OriginHandler,
	collector *metrics.Collector,
	logger *logrus.Logger,
) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Cache:      pc,
		Rules:      rules,
		Origin:     origin,
		ListenPort: port,
	})
	if err != nil {
		return err
	}

	routes.RegisterAdminRoutes(app, adminOptions(cfg, pc, collector, logger))

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	return app.Listen(fmt.Sprintf(":%d", port))
}

func adminOptions(cfg *config.Config, pc *pagecache.PageCache, collector *metrics.Collector, logger *logrus.Logger) routes.AdminOptions {
	admin := routes.AdminOptions{
		Cache:      pc,
		Logger:     logger,
		DefaultTTL: cfg.Global.DefaultTTL.DurationValue(),
		Token:      cfg.Global.AdminToken,
	}
	if admin.Token == "" {
		logger.WithField("action", "admin").Warn("未配置 AdminToken，/-/ 下的清理与写入接口已禁用")
	}
	if collector != nil {
		admin.Metrics = collector.Handler()
	}
	return admin
}

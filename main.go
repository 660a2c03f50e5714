package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/status-hub/internal/cache"
	"github.com/any-hub/status-hub/internal/config"
	"github.com/any-hub/status-hub/internal/logging"
	"github.com/any-hub/status-hub/internal/metrics"
	"github.com/any-hub/status-hub/internal/proxy"
	"github.com/any-hub/status-hub/internal/server"
	"github.com/any-hub/status-hub/internal/server/routes"
	"github.com/any-hub/status-hub/internal/upstream"
	"github.com/any-hub/status-hub/internal/version"
)

const shutdownTimeout = 10 * time.Second

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
	overrides   config.Overrides
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.LoadWithOverrides(opts.configPath, opts.overrides)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["cache_backend"] = cfg.Global.CacheBackend
		fields["upstream"] = cfg.Global.UpstreamURL
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := buildApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}
	defer cleanup()

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen"] = cfg.Global.ListenAddr()
	fields["cache_backend"] = cfg.Global.CacheBackend
	fields["storage_path"] = cfg.Global.StoragePath
	fields["upstream"] = cfg.Global.UpstreamURL
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, app, cfg, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// buildApp 按“缓存存储 → 上游 Fetcher → 代理 Handler → Fiber app”顺序装配，
// 返回的 cleanup 负责关闭缓存后端。
func buildApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*fiber.App, func(), error) {
	store, err := cache.Open(ctx, cfg.Global)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化缓存失败: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("cache_close_failed")
		}
	}

	fetcher, err := upstream.NewHTTPFetcher(server.NewUpstreamClient(cfg), upstream.Options{
		URLTemplate: cfg.Global.UpstreamURL,
		MaxBodySize: cfg.Global.MaxBodySize,
		RateLimit:   cfg.Global.UpstreamRateLimit,
		Burst:       cfg.Global.UpstreamBurst,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("初始化上游失败: %w", err)
	}

	var recorder *metrics.Recorder
	if cfg.Global.MetricsEnabled {
		recorder = metrics.NewRecorder()
	}

	handler := proxy.NewHandler(fetcher, logger, store, recorder)
	app, err := server.NewApp(server.AppOptions{
		Logger:    logger,
		Proxy:     handler,
		BodyLimit: int(cfg.Global.MaxBodySize),
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	diagnostics := routes.DiagnosticsOptions{Config: cfg}
	if recorder != nil {
		diagnostics.Metrics = recorder.Handler()
	}
	routes.RegisterDiagnosticsRoutes(app, diagnostics)

	return app, cleanup, nil
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("status-hub", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
		host       string
		port       int
		cacheRoot  string
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 STATUS_HUB_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")
	fs.StringVar(&host, "host", "", "监听地址，覆盖 ListenHost")
	fs.IntVar(&port, "port", 0, "监听端口，覆盖 ListenPort")
	fs.StringVar(&cacheRoot, "cache-root", "", "缓存目录，覆盖 StoragePath")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}
	if port < 0 {
		return cliOptions{}, errors.New("解析参数失败: --port 不能为负数")
	}

	path := os.Getenv("STATUS_HUB_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = config.DefaultConfigPath
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
		overrides: config.Overrides{
			ListenHost:  host,
			ListenPort:  port,
			StoragePath: cacheRoot,
		},
	}, nil
}

// startHTTPServer 阻塞监听，收到中断信号后在 shutdownTimeout 内优雅退出。
func startHTTPServer(ctx context.Context, app *fiber.App, cfg *config.Config, logger *logrus.Logger) error {
	addr := cfg.Global.ListenAddr()

	go func() {
		<-ctx.Done()
		logger.WithField("action", "shutdown").Info("收到退出信号")
		if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.WithError(err).WithField("action", "shutdown").Warn("shutdown_failed")
		}
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"addr":   addr,
	}).Info("Fiber 服务启动")

	return app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

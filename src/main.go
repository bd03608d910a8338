package main

import (
	"TaxiWeather/src/config"
	"TaxiWeather/src/datasource/file"
	"TaxiWeather/src/pipeline"
	"TaxiWeather/src/storage"
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron"
)

func main() {
	jsonFolder := flag.String("config", "./config", "配置文件目录")
	watch := flag.Bool("watch", false, "监控数据目录, 分区更新或定时刷新时重新分析")
	addr := flag.String("http", "", "实时日志服务地址, 例如 :8080")
	debug := flag.Bool("debug", false, "输出 DEBUG 级别日志")
	flag.Parse()

	cfg, dcfg, err := config.LoadConfig(*jsonFolder, "config.json", "dataconfig.json")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化日志系统
	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Close()
	if *debug {
		logger.SetLevel(storage.DEBUG)
	}

	if *addr != "" {
		go startWebUI(logger, *addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignals(logger, cfg.LogName, cancel)

	analysis := pipeline.NewAnalysis(cfg, dcfg, logger)
	analysis.Out = os.Stdout

	runOnce(ctx, analysis, logger, cfg)
	if !*watch {
		return
	}

	if err := watchAndRefresh(ctx, analysis, logger, cfg); err != nil {
		logger.Error("监控服务异常退出: " + err.Error())
	}
}

// runOnce 执行一次分析, 错误只记录不退出
func runOnce(ctx context.Context, a *pipeline.Analysis, logger *storage.Logger, cfg *config.Config) {
	if err := logger.CheckRotate(cfg); err != nil {
		logger.Warning("日志轮转失败: " + err.Error())
	}

	report, err := a.Run(ctx)
	if err != nil {
		logger.Error("分析失败: " + err.Error())
		return
	}
	fmt.Println(report.Summary)
}

// watchAndRefresh 分区文件新增或更新时使缓存失效并重新分析, 同时按 refresh_interval 定时刷新
func watchAndRefresh(ctx context.Context, a *pipeline.Analysis, logger *storage.Logger, cfg *config.Config) error {
	monitor, err := file.NewFileMonitor(cfg.DataDir, cfg.FilePattern)
	if err != nil {
		return err
	}
	defer monitor.Close()
	// 合并缓存在数据目录内时, 写缓存不能再触发刷新
	monitor.Ignore(a.Merger.Output)

	// 设置定时任务
	c := cron.New()
	interval := time.Duration(cfg.RefreshInterval).String()
	cronSpec := fmt.Sprintf("@every %s", interval)
	err = c.AddFunc(cronSpec, func() {
		logger.Info(fmt.Sprintf("开始定时刷新(间隔: %v)...", interval))
		runOnce(ctx, a, logger, cfg)
	})
	if err != nil {
		return fmt.Errorf("创建定时任务失败: %w", err)
	}
	c.Start()
	defer c.Stop()

	logger.Info(fmt.Sprintf("监控服务已启动(目录: %s, 刷新间隔: %v)，按Ctrl+C退出", cfg.DataDir, interval))
	return monitor.Watch(ctx, func(paths []string) {
		logger.Info("检测到分区文件更新: " + strings.Join(paths, ", "))
		if err := a.Merger.Invalidate(); err != nil {
			logger.Error("删除合并缓存失败: " + err.Error())
		}
		runOnce(ctx, a, logger, cfg)
	})
}

// logsHandler 以 chunked 文本流推送实时日志, 客户端断开时返回
func logsHandler(logger *storage.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		// 创建日志订阅通道
		logChan := logger.Subscribe()
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case msg := <-logChan:
				if _, err := fmt.Fprint(w, msg); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

// startWebUI 启动实时日志服务, /logs 路由输出日志流
func startWebUI(logger *storage.Logger, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", logsHandler(logger))
	logger.Info("实时日志服务: http://" + addr + "/logs")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("日志服务退出: " + err.Error())
	}
}

// waitForSignals SIGHUP 时重新打开日志文件(配合外部日志切割), SIGINT/SIGTERM 时取消 ctx
func waitForSignals(logger *storage.Logger, logName string, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			if err := logger.Reopen(logName); err != nil {
				log.Println("Failed to reopen log file:", err)
				continue
			}
			logger.Info("日志文件已重新打开: " + logName)
			continue
		}
		logger.Info("Received signal: " + sig.String() + ", shutting down...")
		cancel()
		return
	}
}

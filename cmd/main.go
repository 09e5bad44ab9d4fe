package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"MeetingSync/internal/api"
	"MeetingSync/internal/service"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

// make version a variable so the build system can inject it
var version = "dev"

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(logger).Run(ctx, os.Args); err != nil {
		logger.Fatalf("运行失败: %v", err)
	}
}

func rootCommand(logger *logrus.Logger) *cli.Command {
	// 不带子命令时等同 serve
	return &cli.Command{
		Name:     "meetingsync",
		Usage:    "meeting directory sync and calendar push engine",
		Version:  version,
		Flags:    commonFlags(),
		Action:   serveCommand(logger).Action,
		Commands: []*cli.Command{serveCommand(logger), syncCommand(logger), pushCommand(logger), tokenCommand(logger)},
	}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Sources: cli.EnvVars("MEETINGSYNC_CONFIG"),
			Name:    "config",
			Aliases: []string{"c"},
			Value:   "",
			Usage:   "path to config.yaml (default ./config/config.yaml)",
		},
		&cli.StringFlag{
			Sources: cli.EnvVars("LOG_LEVEL"),
			Name:    "log-level",
			Value:   "info",
			Usage:   "logrus level: debug/info/warn/error",
		},
	}
}

// bootstrap 解析公共参数并初始化组件
func bootstrap(cmd *cli.Command, logger *logrus.Logger) (*app, error) {
	if level, err := logrus.ParseLevel(strings.TrimSpace(cmd.String("log-level"))); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithError(err).Warn("日志级别无效，使用 info")
	}
	return newApp(cmd.String("config"), logger)
}

func serveCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API and the scheduled sync/push jobs",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(cmd, logger)
			if err != nil {
				return err
			}
			defer a.close()

			// 配置Gin运行模式（从配置读取：debug/release）
			gin.SetMode(a.cfg.Server.Mode)
			r := gin.New()
			r.Use(gin.Recovery(), requestLogger(logger))
			// 注册ppof 方便调试和监测性能问题
			pprof.Register(r)
			api.RegisterRoutes(r, a.handlers())

			a.sched.Start()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           r,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				logger.Infof("服务启动成功，端口：%d", a.cfg.Server.Port)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("启动服务失败: %w", err)
				}
				return nil
			case <-ctx.Done():
				logger.Info("收到退出信号，开始关闭服务")
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func syncCommand(logger *logrus.Logger) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "run one directory sync across every enabled source and exit",
		Flags: commonFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(cmd, logger)
			if err != nil {
				return err
			}
			defer a.close()

			logger.WithField("sources", a.sync.Sources()).Info("开始目录同步")
			run, err := a.sync.RunAll(ctx, service.Trigger{Manual: true, TriggeredBy: "cli"})
			if err != nil {
				return err
			}
			for source, s := range run.SummaryMap() {
				logger.WithFields(logrus.Fields{
					"source":  source,
					"added":   s.Added,
					"updated": s.Updated,
					"deleted": s.Deleted,
					"total":   s.Total,
					"errors":  s.ErrorCount,
				}).Info("源同步结果")
			}
			if !run.Success {
				return fmt.Errorf("sync run %s finished with errors", run.ID)
			}
			return nil
		},
	}
}

func pushCommand(logger *logrus.Logger) *cli.Command {
	flags := append(commonFlags(), &cli.StringFlag{
		Name:  "user",
		Usage: "push every meeting of this user instead of sweeping pending changes",
	})
	return &cli.Command{
		Name:  "push",
		Usage: "push changed meetings to remote calendars once and exit",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(cmd, logger)
			if err != nil {
				return err
			}
			defer a.close()

			var summary *service.PushSummary
			if userID := cmd.String("user"); userID != "" {
				summary, err = a.push.SyncUser(ctx, userID)
			} else {
				summary, err = a.push.SweepPending(ctx, a.cfg.Sync.PushLimit)
			}
			if summary != nil {
				logger.WithFields(logrus.Fields{
					"pushed":  summary.Pushed,
					"deleted": summary.Deleted,
					"skipped": summary.Skipped,
					"failed":  summary.Failed,
				}).Info("日历推送结果")
			}
			return err
		},
	}
}

func tokenCommand(logger *logrus.Logger) *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{Name: "user", Usage: "user id placed in the token subject", Required: true},
		&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour, Usage: "token lifetime"},
	)
	return &cli.Command{
		Name:  "token",
		Usage: "issue an identity token for an existing user",
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			a, err := bootstrap(cmd, logger)
			if err != nil {
				return err
			}
			defer a.close()

			userID := cmd.String("user")
			if _, err := a.users.GetUser(ctx, userID); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}
			tok, err := a.auth.IssueToken(userID, cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
}

// requestLogger 用 logrus 记录请求
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("请求处理失败")
			return
		}
		entry.Debug("请求完成")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/api"
	"AskWorld-Agents/internal/blob"
	"AskWorld-Agents/internal/channel/telegram"
	"AskWorld-Agents/internal/config"
	"AskWorld-Agents/internal/llm"
	"AskWorld-Agents/internal/llm/openai"
	"AskWorld-Agents/internal/mailbox"
	"AskWorld-Agents/pkg/logger"
)

// deps 是各智能体共享的依赖。
type deps struct {
	cfg     *config.Config
	queue   mailbox.Queue
	fetcher *blob.Fetcher
	model   llm.Client
	logger  *slog.Logger
}

// agentProcess 是一个可运行的智能体：REST 服务、收件箱路由与聊天入口。
type agentProcess struct {
	name    string
	server  *api.Server
	router  *mailbox.Router
	chat    agent.Handler
	closers []func()
}

func (p *agentProcess) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func bootstrap(ctx context.Context, process, path string) (*deps, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("配置文件不存在，使用默认配置", slog.String("path", path))
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Process:     process,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	log := logger.Named("agentd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return nil, err
	}

	queue, err := openMailbox(ctx, cfg.Mailbox)
	if err != nil {
		return nil, err
	}

	d := &deps{
		cfg:     cfg,
		queue:   queue,
		fetcher: blob.NewFetcher(time.Duration(cfg.Walrus.FetchTimeoutSeconds)*time.Second, cfg.Runtime.TempDir, blob.WithMaxBytes(cfg.Walrus.FetchMaxBytes)),
		logger:  log,
	}

	if key := cfg.LLM.ResolveAPIKey(); key != "" {
		client, err := openai.NewClient(openai.Config{
			APIKey:  key,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: cfg.LLM.Timeout(),
		})
		if err != nil {
			_ = queue.Close()
			return nil, err
		}
		d.model = client
	} else {
		log.Warn("未配置大模型密钥，意图识别使用规则兜底，答案评审不可用")
	}
	return d, nil
}

func (d *deps) close() {
	if err := d.queue.Close(); err != nil {
		d.logger.Warn("关闭信箱失败", slog.Any("error", err))
	}
	_ = logger.Sync()
}

func openMailbox(ctx context.Context, cfg config.MailboxConfig) (mailbox.Queue, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "memory":
		return mailbox.NewMemoryQueue(0), nil
	case "redis":
		return mailbox.NewRedisQueue(ctx, mailbox.RedisConfig{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			Prefix:    cfg.Redis.Prefix,
			BlockWait: time.Duration(cfg.Redis.BlockWaitSeconds) * time.Second,
		})
	case "rabbitmq":
		return mailbox.NewRabbitMQQueue(mailbox.RabbitMQConfig{
			URL:      cfg.RabbitMQ.URL,
			Prefetch: cfg.RabbitMQ.Prefetch,
			Durable:  cfg.RabbitMQ.Durable,
		})
	default:
		return nil, fmt.Errorf("暂不支持的信箱驱动: %s", cfg.Driver)
	}
}

// run 启动所有进程的 HTTP 服务与收件箱消费，任一组件失败时整体退出。
func run(ctx context.Context, d *deps, procs ...*agentProcess) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		for _, p := range procs {
			p.close()
		}
	}()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(component string, err error) {
		if err == nil || errors.Is(err, context.Canceled) {
			return
		}
		once.Do(func() {
			firstErr = fmt.Errorf("%s: %w", component, err)
			cancel()
		})
	}
	start := func(component string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fail(component, fn())
		}()
	}

	for _, p := range procs {
		start(p.name+" http", func() error { return p.server.Start(ctx) })
		start(p.name+" mailbox", func() error { return p.router.Run(ctx, d.queue, d.cfg.Mailbox.Worker) })
	}

	if tg := d.cfg.Telegram; tg.Enabled {
		target := findProcess(procs, tg.Agent)
		if target == nil {
			d.logger.Warn("Telegram 绑定的智能体未启动", slog.String("agent", tg.Agent))
		} else {
			bot, err := telegram.New(telegram.Config{Token: tg.ResolveToken(), AllowFrom: tg.AllowFrom}, target.chat, d.fetcher)
			if err != nil {
				cancel()
				wg.Wait()
				return err
			}
			start("telegram", func() error { return bot.Run(ctx) })
		}
	}

	d.logger.Info("智能体已启动", slog.Int("agents", len(procs)), slog.String("mailbox", d.cfg.Mailbox.Driver))
	wg.Wait()
	return firstErr
}

func findProcess(procs []*agentProcess, name string) *agentProcess {
	for _, p := range procs {
		if p.name == name {
			return p
		}
	}
	return nil
}

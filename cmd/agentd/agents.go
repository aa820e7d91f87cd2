package main

import (
	"context"
	"log/slog"
	"time"

	"AskWorld-Agents/internal/agent"
	"AskWorld-Agents/internal/api"
	"AskWorld-Agents/internal/askworld"
	"AskWorld-Agents/internal/blob/walrus"
	"AskWorld-Agents/internal/correlate"
	"AskWorld-Agents/internal/dispatch"
	"AskWorld-Agents/internal/intent"
	"AskWorld-Agents/internal/mailbox"
	"AskWorld-Agents/internal/observability/alerting"
	"AskWorld-Agents/internal/observability/metrics"
	"AskWorld-Agents/internal/protocol"
	"AskWorld-Agents/internal/speech"
	"AskWorld-Agents/internal/speech/whisper"
	"AskWorld-Agents/internal/storage/ledger"
	"AskWorld-Agents/internal/web3"
	"AskWorld-Agents/internal/web3/provider"
	"AskWorld-Agents/pkg/logger"
)

// registerChat 让收件箱中的聊天消息走与 REST 相同的处理链。
func registerChat(r *mailbox.Router, h agent.Handler, fetcher agent.URLFetcher, log *slog.Logger) {
	mailbox.Register(r, func(ctx context.Context, msg protocol.ChatMessage) protocol.ChatReply {
		return agent.Reply(ctx, h, fetcher, msg, log)
	})
}

func newServer(d *deps, name, addr string, m *metrics.Metrics) *api.Server {
	return api.NewServer(addr, name, api.WithMetrics(m), api.WithMetricsPath(d.cfg.Server.MetricsPath))
}

func buildBlob(_ context.Context, d *deps) (*agentProcess, error) {
	cfg := d.cfg
	m := metrics.New("blob")
	log := logger.Named("blob")

	store, err := walrus.NewClient(walrus.Config{
		PublisherURL:  cfg.Walrus.PublisherURL,
		AggregatorURL: cfg.Walrus.AggregatorURL,
		ScannerURL:    cfg.Walrus.ScannerURL,
		Epochs:        cfg.Walrus.Epochs,
		Timeout:       time.Duration(cfg.Walrus.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	correlator := correlate.New(correlate.Config{
		Address:   cfg.Mailbox.BlobAddress,
		Producer:  d.queue,
		HTTPHosts: cfg.Delegation.HTTPHosts,
		Metrics:   m,
	})
	dispatcher := dispatch.New(store, d.fetcher,
		dispatch.WithTranscription(correlator, correlate.Target{
			Address: cfg.Delegation.TranscriberTarget,
			Name:    "voice-to-text agent",
		}, cfg.Delegation.Timeout()),
		dispatch.WithMetrics(m),
	)

	var model intent.Model
	if d.model != nil {
		model = d.model
	}
	classifier := intent.NewClassifier(model, intent.WithTimeout(cfg.LLM.Timeout()))
	pipeline := agent.New(classifier, dispatcher, agent.WithMetrics(m))

	router := mailbox.NewRouter(cfg.Mailbox.BlobAddress, d.queue, correlator)
	mailbox.Register(router, dispatcher.HandleDownload)
	mailbox.Register(router, dispatcher.TranscribeBlob)
	registerChat(router, pipeline, d.fetcher, log)

	server := newServer(d, "blob", cfg.Server.BlobAddr, m)
	api.MountBlob(server, dispatcher, pipeline, d.fetcher)

	return &agentProcess{name: "blob", server: server, router: router, chat: pipeline}, nil
}

func buildTranscriber(_ context.Context, d *deps) (*agentProcess, error) {
	cfg := d.cfg
	m := metrics.New("transcriber")
	log := logger.Named("transcriber")

	var transcriber speech.Transcriber
	if key := cfg.Speech.ResolveAPIKey(); key != "" {
		client, err := whisper.NewClient(whisper.Config{
			APIBase:  cfg.Speech.APIBase,
			APIKey:   key,
			Model:    cfg.Speech.Model,
			Language: cfg.Speech.Language,
			Timeout:  cfg.Speech.Timeout(),
		})
		if err != nil {
			return nil, err
		}
		transcriber = client
	} else {
		log.Warn("未配置语音转写密钥，转写请求将返回失败")
	}
	svc := speech.NewService(transcriber, d.fetcher)

	router := mailbox.NewRouter(cfg.Mailbox.TranscriberAddress, d.queue, nil)
	mailbox.Register(router, svc.Transcribe)
	registerChat(router, svc, d.fetcher, log)

	server := newServer(d, "transcriber", cfg.Server.TranscriberAddr, m)
	api.MountTranscriber(server, svc, d.fetcher)

	return &agentProcess{name: "transcriber", server: server, router: router, chat: svc}, nil
}

func buildAskWorld(ctx context.Context, d *deps) (*agentProcess, error) {
	cfg := d.cfg
	m := metrics.New("askworld")
	log := logger.Named("askworld")
	proc := &agentProcess{name: "askworld"}

	var chain web3.Client
	registry, err := provider.NewRegistry(ctx, cfg.Chain, m)
	if err != nil {
		log.Warn("合约客户端初始化失败，链上指令将返回错误", slog.Any("error", err))
	} else {
		proc.closers = append(proc.closers, registry.Close)
		client, err := registry.DefaultClient()
		if err != nil {
			proc.close()
			return nil, err
		}
		chain = client
		log.Info("合约客户端已就绪", slog.Any("contracts", registry.Contracts()), slog.Bool("signer", client.CanSign()))
	}

	store, err := ledger.Open(ctx, ledger.Config{
		Driver:          cfg.Ledger.Driver,
		DSN:             cfg.Ledger.DSN,
		DataDir:         cfg.Runtime.DataDir,
		MaxOpenConns:    cfg.Ledger.MaxOpenConns,
		MaxIdleConns:    cfg.Ledger.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Ledger.ConnMaxLifetimeSeconds) * time.Second,
	})
	if err != nil {
		proc.close()
		return nil, err
	}
	proc.closers = append(proc.closers, func() { _ = store.Close() })

	correlator := correlate.New(correlate.Config{
		Address:   cfg.Mailbox.AskWorldAddress,
		Producer:  d.queue,
		HTTPHosts: cfg.Delegation.HTTPHosts,
		Metrics:   m,
	})

	notifiers := []alerting.Notifier{alerting.AuditNotifier{}}
	if tg := cfg.Telegram; tg.AlertChatID != 0 && tg.ResolveToken() != "" {
		notifier, err := alerting.NewTelegramNotifier(tg.ResolveToken(), tg.AlertChatID)
		if err != nil {
			log.Warn("Telegram 告警不可用", slog.Any("error", err))
		} else {
			notifiers = append(notifiers, notifier)
		}
	}

	var judge askworld.Judge
	if d.model != nil {
		judge = d.model
	}
	svc := askworld.NewService(askworld.Config{
		Chain:      chain,
		Judge:      judge,
		Correlator: correlator,
		BlobAgent:  correlate.Target{Address: cfg.Delegation.BlobAgentTarget, Name: "the Walrus agent"},
		Ledger:     store,
		Timeout:    cfg.Delegation.Timeout(),
		Metrics:    m,
		Alerts:     alerting.NewFanout(notifiers...),
	})

	router := mailbox.NewRouter(cfg.Mailbox.AskWorldAddress, d.queue, correlator)
	mailbox.Register(router, svc.Call)
	registerChat(router, svc, d.fetcher, log)

	server := newServer(d, "askworld", cfg.Server.AskWorldAddr, m)
	api.MountAskWorld(server, svc, d.fetcher)

	proc.server = server
	proc.router = router
	proc.chat = svc
	return proc, nil
}

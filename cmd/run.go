package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/infrastructure/chatstorage"
	"github.com/brainzab/mranatoly-bot/integrations/deepseek"
	"github.com/brainzab/mranatoly-bot/integrations/instagram"
	"github.com/brainzab/mranatoly-bot/integrations/telegram"
	"github.com/brainzab/mranatoly-bot/pkg/apicache"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/brainzab/mranatoly-bot/pkg/msgworker"
	"github.com/brainzab/mranatoly-bot/pkg/ratelimit"
	"github.com/brainzab/mranatoly-bot/pkg/timeutils"
	"github.com/brainzab/mranatoly-bot/pkg/utils"
	uiRest "github.com/brainzab/mranatoly-bot/ui/rest"
	"github.com/brainzab/mranatoly-bot/usecase"
	"github.com/dustin/go-humanize"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	aiRequestsPerMinute = 5
	historyRetention    = 30 * 24 * time.Hour
	keepAliveInterval   = 5 * time.Minute
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot: poll Telegram, run schedulers and the monitoring API",
	Run:   runBot,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runBot(_ *cobra.Command, _ []string) {
	config.Load()
	if err := config.Validate(); err != nil {
		logrus.Fatalf("[APP] configuration invalid: %v", err)
	}
	if config.AppDebug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if err := utils.CreateFolder(config.PathMedia, config.PathDebug, config.PathStorage); err != nil {
		logrus.Errorln(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tg := telegram.NewClient(config.TelegramToken)
	me, err := tg.GetMe(ctx)
	if err != nil {
		logrus.Fatalf("[APP] getMe failed: %v", err)
	}
	logrus.Infof("[APP] authorized as @%s (id %d), version %s", me.Username, me.ID, config.AppVersion)

	repo, err := chatstorage.NewRepository(config.DatabaseURL)
	if err != nil {
		logrus.Fatalf("[APP] chat storage init failed: %v", err)
	}

	monitor := botmonitor.New()
	gateway := usecase.NewGatewayService(apicache.New(), monitor)
	feeds := usecase.NewFeedsService(gateway)
	ai := deepseek.NewClient()
	limiter := ratelimit.New(aiRequestsPerMinute, time.Minute)

	messages := usecase.NewMessageService(
		tg,
		instagram.NewDefaultResolver(),
		instagram.NewFetcher(),
		ai,
		repo,
		monitor,
		limiter,
		instagram.ExtractShortcode,
	)
	messages.SetBotIdentity(me.ID, me.Username)

	commands := usecase.NewCommandService(tg, feeds, repo, monitor)
	commands.SetBotIdentity(me.ID)

	morning := usecase.NewMorningService(tg, feeds, ai, monitor)

	pool := msgworker.NewPool(config.MessageWorkers, config.MessageQueueSize)
	pool.Start(ctx)

	poller := telegram.NewPoller(tg, func(ctx context.Context, update telegram.Update) {
		msg := update.Message
		if msg == nil || msg.Chat == nil {
			return
		}
		pool.Dispatch(msgworker.Job{
			ChatID: msg.Chat.ID,
			Handler: func(jobCtx context.Context) error {
				if commands.Handle(jobCtx, msg) {
					return nil
				}
				messages.Handle(jobCtx, msg)
				return nil
			},
		})
	})
	go poller.Run(ctx)

	loc, err := time.LoadLocation(config.Timezone)
	if err != nil {
		logrus.Warnf("[SCHEDULER] unknown timezone %q, falling back to UTC: %v", config.Timezone, err)
		loc = time.UTC
	}

	go runDaily(ctx, loc, 7, 30, "morning bulletin", func(jobCtx context.Context) {
		if err := morning.Send(jobCtx); err != nil {
			logrus.Errorf("[SCHEDULER] morning bulletin failed: %v", err)
		}
	})
	go runDaily(ctx, loc, 21, 0, "evening stats", func(jobCtx context.Context) {
		sendEveningStats(jobCtx, tg, monitor)
	})
	go runDaily(ctx, loc, 0, 0, "history cleanup", func(jobCtx context.Context) {
		removed, err := repo.CleanupOlderThan(jobCtx, historyRetention)
		if err != nil {
			logrus.Errorf("[SCHEDULER] history cleanup failed: %v", err)
			return
		}
		logrus.Infof("[SCHEDULER] history cleanup removed %d rows", removed)
	})
	go notifyStartup(ctx, tg)
	go keepAlive(ctx, monitor)

	app := fiber.New(fiber.Config{
		AppName:               "mranatoly-bot",
		DisableStartupMessage: true,
	})
	if config.AppDebug {
		app.Use(fiberlogger.New())
	}
	uiRest.InitRestMonitoring(app.Group("/api"), monitor, pool)
	go func() {
		if err := app.Listen(":" + config.AppPort); err != nil {
			logrus.Fatalln("[REST] failed to start:", err.Error())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logrus.Info("[APP] termination signal received, shutting down...")
	cancel()
	pool.Stop()
	if err := app.Shutdown(); err != nil {
		logrus.Errorf("[REST] shutdown error: %v", err)
	}
	logrus.Info("[APP] stopped cleanly")
}

// runDaily fires job once a day at hour:minute in loc, until ctx is cancelled.
// Each run gets its own deadline so a stuck job cannot skew the schedule.
func runDaily(ctx context.Context, loc *time.Location, hour, minute int, name string, job func(ctx context.Context)) {
	for {
		next := timeutils.NextDailyOccurrence(hour, minute, loc, time.Now())
		logrus.Infof("[SCHEDULER] %s scheduled for %s", name, next.Format("2006-01-02 15:04 MST"))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		jobCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		job(jobCtx)
		cancel()
	}
}

// notifyStartup tells the admin chat the bot is up, after a short delay so a
// crash loop does not spam the chat.
func notifyStartup(ctx context.Context, tg *telegram.Client) {
	if !config.MonitoringEnabled || config.AdminChatID == 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Minute):
	}
	text := fmt.Sprintf("🚀 Бот запущен и работает. Версия: %s", config.AppVersion)
	if err := tg.SendMessage(ctx, config.AdminChatID, text, 0); err != nil {
		logrus.Warnf("[APP] startup notification failed: %v", err)
	}
}

func keepAlive(ctx context.Context, monitor *botmonitor.Monitor) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := monitor.GetSnapshot()
			logrus.Infof("[APP] alive for %s, %d messages, %d errors, %s in use",
				snap.UptimeText, snap.MessageCount, snap.ErrorCount, humanize.IBytes(snap.MemoryBytes))
		}
	}
}

func sendEveningStats(ctx context.Context, tg *telegram.Client, monitor *botmonitor.Monitor) {
	if !config.MonitoringEnabled || config.AdminChatID == 0 {
		return
	}
	snap := monitor.GetSnapshot()
	text := fmt.Sprintf(
		"🌙 Вечерний отчёт:\n\n⏱️ Время работы: %s\n💬 Сообщений: %d\n⌨️ Команд: %d\n🧠 AI-запросов: %d\n🌐 API-запросов: %d\n❌ Ошибок: %d",
		snap.UptimeText, snap.MessageCount, snap.CommandCount, snap.AIRequestCount, snap.APIRequestCount, snap.ErrorCount,
	)
	if err := tg.SendMessage(ctx, config.AdminChatID, text, 0); err != nil {
		logrus.Warnf("[SCHEDULER] evening stats failed: %v", err)
	}
}

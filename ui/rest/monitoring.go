package rest

import (
	"github.com/brainzab/mranatoly-bot/config"
	"github.com/brainzab/mranatoly-bot/pkg/botmonitor"
	"github.com/brainzab/mranatoly-bot/pkg/msgworker"
	"github.com/brainzab/mranatoly-bot/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// instanceID distinguishes process restarts in health probes.
var instanceID = uuid.NewString()

type Monitoring struct {
	Monitor *botmonitor.Monitor
	Pool    *msgworker.Pool
}

func InitRestMonitoring(app fiber.Router, monitor *botmonitor.Monitor, pool *msgworker.Pool) Monitoring {
	rest := Monitoring{Monitor: monitor, Pool: pool}
	app.Get("/health", rest.Health)
	app.Get("/stats", rest.Stats)
	app.Get("/chats/stats", rest.ChatStats)
	app.Get("/workers/stats", rest.WorkerStats)
	return rest
}

func (h *Monitoring) Health(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Bot is running",
		Results: map[string]any{
			"version":     config.AppVersion,
			"instance_id": instanceID,
			"uptime":      h.Monitor.GetSnapshot().UptimeText,
		},
	})
}

func (h *Monitoring) Stats(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Stats fetched",
		Results: h.Monitor.GetSnapshot(),
	})
}

func (h *Monitoring) ChatStats(c *fiber.Ctx) error {
	snap := h.Monitor.GetSnapshot()
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Chat stats fetched",
		Results: map[string]any{
			"total_chats": len(snap.Chats),
			"chats":       snap.Chats,
		},
	})
}

func (h *Monitoring) WorkerStats(c *fiber.Ctx) error {
	if h.Pool == nil {
		return c.Status(404).JSON(utils.ResponseData{
			Status:  404,
			Code:    "NOT_FOUND",
			Message: "Worker pool is not running",
		})
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Worker stats fetched",
		Results: h.Pool.GetStats(),
	})
}

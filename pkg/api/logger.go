package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// scrapePaths are polled by monitoring and only logged at debug level
var scrapePaths = map[string]bool{
	"/metrics": true,
	"/version": true,
}

func requestEvent(status int, path string) *zerolog.Event {
	switch {
	case status >= fiber.StatusInternalServerError:
		return log.Error()
	case status >= fiber.StatusBadRequest:
		return log.Warn()
	case scrapePaths[path]:
		return log.Debug()
	default:
		return log.Info()
	}
}

func clientIP(c *fiber.Ctx) string {
	if forwarded := c.IPs(); len(forwarded) > 0 {
		return forwarded[0]
	}

	return c.IP()
}

// NewLogger writes one access log line per request, tagged with the matched route and
// the alarm id for /alarms/:id requests
func NewLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		event := requestEvent(status, c.Path()).
			Int("status", status).
			Str("method", c.Method()).
			Str("route", c.Route().Path).
			Str("path", c.Path()).
			Str("ip", clientIP(c)).
			Dur("latency", time.Since(started)).
			Str("user-agent", c.Get(fiber.HeaderUserAgent))

		if alarmID := c.Params("id"); alarmID != "" {
			event = event.Str("alarm", alarmID)
		}

		if err != nil {
			event.Err(err).Msg("HTTP Request failed")
			return err
		}

		event.Msg("HTTP Request")

		return nil
	}
}

package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/metrics"
)

// NewMetrics records request counts and latency by route pattern, not raw path,
// so alarm ids do not explode the label set
func NewMetrics(m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		startTime := time.Now()
		err := c.Next()

		path := c.Route().Path
		if path == "" {
			path = "unmatched"
		}

		m.HTTPRequest(c.Method(), path, strconv.Itoa(c.Response().StatusCode()), time.Since(startTime))

		return err
	}
}

package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/StefanRaatz/db-pendler-wecker/pkg/alarm"
	"github.com/StefanRaatz/db-pendler-wecker/pkg/ctdf"
)

const defaultVolume = 1.0

// Dismisser stops a ringing alarm
type Dismisser interface {
	Dismiss(alarmID string) bool
}

type scheduleRequest struct {
	ConnectionIndex *int             `json:"connectionIndex"`
	Connection      *ctdf.Connection `json:"connection"`
	LeadMinutes     int              `json:"leadMinutes"`
	Volume          *float64         `json:"volume"`
	SoundRef        string           `json:"soundRef"`
}

type updateRequest struct {
	LeadMinutes *int     `json:"leadMinutes"`
	Volume      *float64 `json:"volume"`
	SoundRef    *string  `json:"soundRef"`
}

type alarmsHandler struct {
	scheduler *alarm.Scheduler
	dismisser Dismisser
}

func AlarmsRouter(router fiber.Router, scheduler *alarm.Scheduler, dismisser Dismisser) {
	h := alarmsHandler{scheduler: scheduler, dismisser: dismisser}

	router.Get("/", h.listAlarms)
	router.Post("/", h.scheduleAlarm)
	router.Post("/sweep", h.sweepAlarms)
	router.Get("/:id", h.getAlarm)
	router.Patch("/:id", h.updateAlarm)
	router.Delete("/:id", h.cancelAlarm)
	router.Post("/:id/dismiss", h.dismissAlarm)
}

func (h alarmsHandler) listAlarms(c *fiber.Ctx) error {
	alarms, err := h.scheduler.List(c.UserContext())
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, alarms)
}

func (h alarmsHandler) scheduleAlarm(c *fiber.Ctx) error {
	var req scheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidRequest(c, "alarm.schedule", "cannot read alarm body")
	}

	volume := defaultVolume
	if req.Volume != nil {
		volume = *req.Volume
	}

	var scheduled *ctdf.Alarm
	var err error

	switch {
	case req.ConnectionIndex != nil:
		scheduled, err = h.scheduler.ScheduleFromResults(c.UserContext(), *req.ConnectionIndex, req.LeadMinutes, volume, req.SoundRef)
	case req.Connection != nil:
		if req.Connection.DepartureAt.IsZero() {
			return invalidRequest(c, "alarm.schedule", "connection has no departure time")
		}
		req.Connection.Normalise("")

		scheduled, err = h.scheduler.Schedule(c.UserContext(), alarm.Request{
			Connection:  req.Connection,
			LeadMinutes: req.LeadMinutes,
			Volume:      volume,
			SoundRef:    req.SoundRef,
		})
	default:
		return invalidRequest(c, "alarm.schedule", "either connectionIndex or connection is required")
	}
	if err != nil {
		return SendError(c, err)
	}

	c.Status(fiber.StatusCreated)
	return sendView(c, scheduled)
}

func (h alarmsHandler) getAlarm(c *fiber.Ctx) error {
	found, err := h.scheduler.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, found)
}

func (h alarmsHandler) updateAlarm(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidRequest(c, "alarm.update", "cannot read alarm body")
	}

	updated, err := h.scheduler.Update(c.UserContext(), c.Params("id"), alarm.Changes{
		LeadMinutes: req.LeadMinutes,
		Volume:      req.Volume,
		SoundRef:    req.SoundRef,
	})
	if err != nil {
		return SendError(c, err)
	}

	return sendView(c, updated)
}

func (h alarmsHandler) cancelAlarm(c *fiber.Ctx) error {
	if err := h.scheduler.Cancel(c.UserContext(), c.Params("id")); err != nil {
		return SendError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h alarmsHandler) dismissAlarm(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"dismissed": h.dismisser.Dismiss(c.Params("id")),
	})
}

func (h alarmsHandler) sweepAlarms(c *fiber.Ctx) error {
	swept, err := h.scheduler.Sweep(c.UserContext())
	if err != nil {
		return SendError(c, err)
	}

	return c.JSON(fiber.Map{
		"swept": swept,
	})
}

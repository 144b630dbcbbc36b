package routes

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/liip/sheriff"

	pkgerrors "github.com/StefanRaatz/db-pendler-wecker/pkg/errors"
)

const (
	ViewBasic  = "basic"
	ViewWidget = "widget"
)

var kindStatus = map[pkgerrors.Kind]int{
	pkgerrors.KindInvalidRequest:    fiber.StatusBadRequest,
	pkgerrors.KindPermissionDenied:  fiber.StatusForbidden,
	pkgerrors.KindNotFound:          fiber.StatusNotFound,
	pkgerrors.KindPastDeparture:     fiber.StatusUnprocessableEntity,
	pkgerrors.KindNetwork:           fiber.StatusBadGateway,
	pkgerrors.KindMalformedResponse: fiber.StatusBadGateway,
	pkgerrors.KindPersistence:       fiber.StatusInternalServerError,
	pkgerrors.KindTimer:             fiber.StatusInternalServerError,
}

func StatusForKind(kind pkgerrors.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}

	return fiber.StatusInternalServerError
}

// SendError writes {"error", "kind", "remediation"} with the status mapped from the error kind
func SendError(c *fiber.Ctx, err error) error {
	kind := pkgerrors.KindOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = pkgerrors.KindNetwork
	}

	message := err.Error()
	var typed *pkgerrors.Error
	if pkgerrors.As(err, &typed) && typed.Message != "" {
		message = typed.Message
	}

	body := fiber.Map{
		"error": message,
		"kind":  kind,
	}
	if remediation := pkgerrors.RemediationOf(err); remediation != "" {
		body["remediation"] = remediation
	}

	c.Status(StatusForKind(kind))
	return c.JSON(body)
}

func invalidRequest(c *fiber.Ctx, op string, message string) error {
	return SendError(c, pkgerrors.New(pkgerrors.KindInvalidRequest, op, message))
}

func viewGroups(c *fiber.Ctx) ([]string, error) {
	switch view := c.Query("view", ViewBasic); view {
	case ViewBasic, ViewWidget:
		return []string{view}, nil
	default:
		return nil, pkgerrors.Newf(pkgerrors.KindInvalidRequest, "view", "unknown view %q", view)
	}
}

func sendReduced(c *fiber.Ctx, groups []string, value interface{}) error {
	reduced, err := sheriff.Marshal(&sheriff.Options{
		Groups: groups,
	}, value)
	if err != nil {
		c.SendStatus(fiber.StatusInternalServerError)
		return c.JSON(fiber.Map{
			"error": "Sheriff could not reduce response",
		})
	}

	return c.JSON(reduced)
}

// sendView reduces value to the fields of the view requested with ?view=
func sendView(c *fiber.Ctx, value interface{}) error {
	groups, err := viewGroups(c)
	if err != nil {
		return SendError(c, err)
	}

	return sendReduced(c, groups, value)
}

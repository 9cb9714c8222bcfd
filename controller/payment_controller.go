package controller

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"storefront-service/model"
	"storefront-service/service"
)

type PaymentController struct {
	Payments *service.Payments
}

func NewPaymentController(payments *service.Payments) *PaymentController {
	return &PaymentController{Payments: payments}
}

// Create opens the pending payment for an external-method order and returns
// the merchant transaction id the client forwards to the provider.
func (pc *PaymentController) Create(c *fiber.Ctx) error {
	var body struct {
		OrderID uint `json:"order_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	actor := actorFrom(c)
	payment, err := pc.Payments.Create(c.Context(), body.OrderID, actor.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(payment)
}

func (pc *PaymentController) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	payment, err := pc.Payments.Get(c.Context(), uint(id), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(payment)
}

func (pc *PaymentController) ListUser(c *fiber.Ctx) error {
	actor := actorFrom(c)
	list, err := pc.Payments.List(c.Context(), actor.UserID)
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []*model.Payment{}
	}
	return c.JSON(list)
}

// Callback ingests a provider notification. Providers submit form-encoded or
// JSON payloads; both flatten to string fields.
func (pc *PaymentController) Callback(c *fiber.Ctx) error {
	method := model.PaymentMethod(c.Params("provider"))

	payload := map[string]string{}
	if len(c.Body()) > 0 && c.Get("Content-Type") == fiber.MIMEApplicationJSON {
		if err := c.BodyParser(&payload); err != nil {
			return c.Status(400).JSON(fiber.Map{"status": "error", "detail": "invalid payload"})
		}
	} else {
		c.Request().PostArgs().VisitAll(func(key, value []byte) {
			payload[string(key)] = string(value)
		})
	}

	result, err := pc.Payments.IngestCallback(c.Context(), method, payload)
	if err != nil {
		return c.Status(httpStatus(err)).JSON(fiber.Map{"status": "error", "detail": err.Error()})
	}
	return c.JSON(result)
}

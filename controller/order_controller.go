package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"storefront-service/model"
	"storefront-service/service"
	"storefront-service/store"
)

type OrderController struct {
	Orders *service.Orders
	Redis  *redis.Client
}

func NewOrderController(orders *service.Orders, rdb *redis.Client) *OrderController {
	return &OrderController{Orders: orders, Redis: rdb}
}

func (oc *OrderController) clearCache(ctx context.Context, userID uint) {
	oc.Redis.Del(ctx, fmt.Sprintf("orders:%d", userID))
	oc.Redis.Del(ctx, "orders:all")
}

func (oc *OrderController) Create(c *fiber.Ctx) error {
	actor := actorFrom(c)

	var body struct {
		ProductID     uint   `json:"product_id"`
		Quantity      int    `json:"quantity"`
		PaymentMethod string `json:"payment_method"`
		Note          string `json:"note"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Quantity == 0 {
		body.Quantity = 1
	}

	order, err := oc.Orders.Create(c.Context(), actor.UserID, body.ProductID,
		body.Quantity, model.PaymentMethod(body.PaymentMethod), body.Note)
	if err != nil {
		return fail(c, err)
	}

	oc.clearCache(c.Context(), actor.UserID)
	return c.Status(201).JSON(order)
}

func (oc *OrderController) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	order, err := oc.Orders.Get(c.Context(), uint(id), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(order)
}

func (oc *OrderController) ListUser(c *fiber.Ctx) error {
	actor := actorFrom(c)
	cacheKey := fmt.Sprintf("orders:%d", actor.UserID)

	if cached, err := oc.Redis.Get(c.Context(), cacheKey).Result(); err == nil {
		var list []*model.Order
		_ = json.Unmarshal([]byte(cached), &list)
		return c.JSON(list)
	}

	list, err := oc.Orders.List(c.Context(), actor.UserID, model.OrderStatus(c.Query("status")))
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []*model.Order{}
	}

	if c.Query("status") == "" {
		js, _ := json.Marshal(list)
		oc.Redis.Set(c.Context(), cacheKey, js, 5*time.Minute)
	}
	return c.JSON(list)
}

func (oc *OrderController) ListAll(c *fiber.Ctx) error {
	list, err := oc.Orders.List(c.Context(), 0, model.OrderStatus(c.Query("status")))
	if err != nil {
		return fail(c, err)
	}
	if list == nil {
		list = []*model.Order{}
	}
	return c.JSON(list)
}

func (oc *OrderController) Pay(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}
	actor := actorFrom(c)

	order, err := oc.Orders.Pay(c.Context(), uint(id), actor.UserID)
	if errors.Is(err, store.ErrFulfillmentPending) {
		// Payment settled; delivery needs an operator. Return the paid order
		// rather than an opaque failure.
		oc.clearCache(c.Context(), actor.UserID)
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"order":  order,
			"detail": "fulfillment pending",
		})
	}
	if err != nil {
		return fail(c, err)
	}

	oc.clearCache(c.Context(), actor.UserID)
	return c.JSON(order)
}

func (oc *OrderController) Cancel(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	order, err := oc.Orders.Cancel(c.Context(), uint(id), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}

	oc.clearCache(c.Context(), order.UserID)
	return c.JSON(order)
}

func (oc *OrderController) Refund(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	order, err := oc.Orders.Refund(c.Context(), uint(id), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}

	oc.clearCache(c.Context(), order.UserID)
	return c.JSON(order)
}

// Deliver is the admin retry path for orders stuck in fulfillment.
func (oc *OrderController) Deliver(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	order, err := oc.Orders.Deliver(c.Context(), uint(id), actorFrom(c))
	if err != nil {
		return fail(c, err)
	}

	oc.clearCache(c.Context(), order.UserID)
	return c.JSON(order)
}

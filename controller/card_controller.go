package controller

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"storefront-service/model"
	"storefront-service/service"
)

type CardController struct {
	Cards *service.Cards
}

func NewCardController(cards *service.Cards) *CardController {
	return &CardController{Cards: cards}
}

func (cc *CardController) Create(c *fiber.Ctx) error {
	var body struct {
		ProductID uint       `json:"product_id"`
		Content   string     `json:"content"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Content == "" {
		return c.Status(400).JSON(fiber.Map{"error": "content required"})
	}

	card, err := cc.Cards.Create(c.Context(), body.ProductID, body.Content, body.ExpiresAt)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(card)
}

func (cc *CardController) BatchCreate(c *fiber.Ctx) error {
	var body struct {
		ProductID uint       `json:"product_id"`
		Contents  []string   `json:"contents"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(body.Contents) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "contents required"})
	}

	cards, err := cc.Cards.BatchCreate(c.Context(), body.ProductID, body.Contents, body.ExpiresAt)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(201).JSON(fiber.Map{"created": len(cards), "cards": cards})
}

func (cc *CardController) List(c *fiber.Ctx) error {
	productID, _ := strconv.Atoi(c.Query("product_id"))

	cards, err := cc.Cards.List(c.Context(), uint(productID), model.CardStatus(c.Query("status")))
	if err != nil {
		return fail(c, err)
	}
	if cards == nil {
		cards = []*model.Card{}
	}
	return c.JSON(cards)
}

func (cc *CardController) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	card, err := cc.Cards.Get(c.Context(), uint(id))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(card)
}

func (cc *CardController) Lock(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	card, err := cc.Cards.Lock(c.Context(), uint(id))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(card)
}

func (cc *CardController) Unlock(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	card, err := cc.Cards.Unlock(c.Context(), uint(id))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(card)
}

func (cc *CardController) Delete(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	if err := cc.Cards.Delete(c.Context(), uint(id)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "card deleted"})
}

package controller

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"storefront-service/model"
	"storefront-service/store"
)

// ProductController serves catalog reads; catalog CRUD lives outside this
// service.
type ProductController struct {
	Store store.Store
	Redis *redis.Client
}

func NewProductController(st store.Store, rdb *redis.Client) *ProductController {
	return &ProductController{Store: st, Redis: rdb}
}

func (pc *ProductController) List(c *fiber.Ctx) error {
	cacheKey := "products:all"

	if cached, err := pc.Redis.Get(c.Context(), cacheKey).Result(); err == nil {
		var products []*model.Product
		_ = json.Unmarshal([]byte(cached), &products)
		return c.JSON(products)
	}

	products, err := pc.Store.Products().List(c.Context())
	if err != nil {
		return fail(c, err)
	}
	if products == nil {
		products = []*model.Product{}
	}

	js, _ := json.Marshal(products)
	pc.Redis.Set(c.Context(), cacheKey, js, 5*time.Minute)

	return c.JSON(products)
}

func (pc *ProductController) Get(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid id"})
	}

	product, err := pc.Store.Products().Get(c.Context(), uint(id))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(product)
}

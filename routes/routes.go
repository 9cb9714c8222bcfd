package routes

import (
	"github.com/gofiber/fiber/v2"

	"storefront-service/controller"
	"storefront-service/middleware"
)

func Register(
	app *fiber.App,
	oc *controller.OrderController,
	pc *controller.PaymentController,
	cc *controller.CardController,
	prc *controller.ProductController,
) {
	auth := middleware.Auth()
	admin := middleware.AdminOnly()

	api := app.Group("/api")

	products := api.Group("/products")
	products.Get("/", prc.List)
	products.Get("/:id", prc.Get)

	orders := api.Group("/orders", auth)
	orders.Post("/", oc.Create)
	orders.Get("/", oc.ListUser)
	orders.Get("/all", admin, oc.ListAll)
	orders.Get("/:id", oc.Get)
	orders.Post("/:id/pay", oc.Pay)
	orders.Post("/:id/cancel", oc.Cancel)
	orders.Post("/:id/refund", oc.Refund)
	orders.Post("/:id/deliver", admin, oc.Deliver)

	payments := api.Group("/payments")
	// Provider callbacks authenticate by signature, not session.
	payments.Post("/callback/:provider", pc.Callback)
	payments.Post("/", auth, pc.Create)
	payments.Get("/", auth, pc.ListUser)
	payments.Get("/:id", auth, pc.Get)

	cards := api.Group("/cards", auth, admin)
	cards.Post("/", cc.Create)
	cards.Post("/batch", cc.BatchCreate)
	cards.Get("/", cc.List)
	cards.Get("/:id", cc.Get)
	cards.Post("/:id/lock", cc.Lock)
	cards.Post("/:id/unlock", cc.Unlock)
	cards.Delete("/:id", cc.Delete)
}

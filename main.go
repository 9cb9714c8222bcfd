package main

import (
	"database/sql"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"storefront-service/cache"
	"storefront-service/config"
	"storefront-service/controller"
	kafkax "storefront-service/kafka"
	"storefront-service/model"
	"storefront-service/payment"
	"storefront-service/routes"
	"storefront-service/service"
	"storefront-service/store"
)

func initDB(cfg config.Config) *sql.DB {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect storefront db:", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Category{},
		&model.Product{},
		&model.Order{},
		&model.Payment{},
		&model.Card{},
	); err != nil {
		log.Fatal(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("failed to get sql.DB from gorm:", err)
	}
	return sqlDB
}

func main() {
	cfg := config.Load()

	sqlDB := initDB(cfg)
	st := store.NewPostgres(sqlDB)

	rdb := cache.Connect(cfg.RedisAddr)
	producer := kafkax.NewProducer(cfg.KafkaBroker)

	vault, err := service.NewVault(cfg.CardEncryptionKey)
	if err != nil {
		log.Fatal("vault init:", err)
	}

	orders := service.NewOrders(st, vault, producer)
	cards := service.NewCards(st, vault)
	payments := service.NewPayments(st, orders, producer, cfg.VerifyTimeout)
	payments.Register(payment.Alipay{}, payment.NewHMACVerifier(cfg.AlipaySecret))
	payments.Register(payment.Wechat{}, payment.NewHMACVerifier(cfg.WechatSecret))

	app := fiber.New()
	app.Use(logger.New())

	routes.Register(
		app,
		controller.NewOrderController(orders, rdb),
		controller.NewPaymentController(payments),
		controller.NewCardController(cards),
		controller.NewProductController(st, rdb),
	)

	log.Println("HTTP server running on", cfg.HTTPAddr)
	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatal("fiber error:", err)
	}
}

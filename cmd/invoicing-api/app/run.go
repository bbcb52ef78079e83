package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/livioochertes/kitchenoff-sub001/configs"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/cache"
	httpadapter "github.com/livioochertes/kitchenoff-sub001/internal/adapter/http"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/http/middleware"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/kafka"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/queue"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/repo"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/sameday"
	"github.com/livioochertes/kitchenoff-sub001/internal/adapter/smartbill"
	"github.com/livioochertes/kitchenoff-sub001/internal/logging"
	"github.com/livioochertes/kitchenoff-sub001/internal/usecase"
	"github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Router *gin.Engine
}

func InitWithConfig(cfg configs.Config) (*App, func(), error) {
	logger := logging.Init(cfg.App.Name, cfg.App.LogFile)

	// init database
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := db.PingContext(ctx); err != nil {
		cancel()
		return nil, nil, err
	}
	cancel()

	logger.Info("invoicing-api: starting up")

	// init redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       0,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, nil, err
	}

	// init rabbitmq
	conn, err := amqp091.Dial(cfg.Rabbit.URL)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, err
	}
	producer, err := queue.NewRabbitProducer(ch)
	if err != nil {
		return nil, nil, err
	}

	// external clients
	var provider usecase.InvoicingProvider
	if cfg.Smartbill.Enabled {
		provider = smartbill.New(smartbill.Config{
			BaseURL:  cfg.Smartbill.BaseURL,
			Username: cfg.Smartbill.Username,
			Token:    cfg.Smartbill.Token,
		})
	}
	carrier := sameday.New(sameday.Config{
		BaseURL:      cfg.Sameday.BaseURL,
		Username:     cfg.Sameday.Username,
		Password:     cfg.Sameday.Password,
		AuthCooldown: cfg.Sameday.AuthCooldown,
	})

	// data gateway + dedup
	orderRepo := repo.NewMySQLOrderRepo(db)
	userRepo := repo.NewMySQLUserRepo(db)
	invoiceRepo := repo.NewMySQLInvoiceRepo(db)
	dedup := cache.NewRedisDedupStore(rdb, cfg.Dedup.TTL)
	tracking := cache.NewRedisTrackingCache(rdb, 5*time.Minute)

	// orchestrator
	svc := usecase.NewInvoiceService(orderRepo, userRepo, invoiceRepo, provider, dedup, producer,
		usecase.InvoiceServiceConfig{
			ProviderEnabled: cfg.Smartbill.Enabled,
			CompanyTaxID:    cfg.Smartbill.CompanyTaxID,
			DefaultSeries:   cfg.Smartbill.Series,
		})

	// register queue consumer for shipping fulfillment
	setupQueue(ch, orderRepo, carrier, cfg)

	// register kafka listener for payment events
	setupKafkaListener(cfg, svc)

	// handlers + router + middleware
	wh := httpadapter.NewWebhookHandler(svc)
	ih := httpadapter.NewInvoiceHandler(svc)
	sh := httpadapter.NewShippingHandler(carrier, tracking)
	th := httpadapter.NewTokenHandler(cfg)
	authz := middleware.NewAuthz(cfg)
	router := httpadapter.NewRouter(wh, ih, sh, th, authz)

	cleanup := func() {
		_ = db.Close()
		_ = rdb.Close()
		_ = ch.Close()
		_ = conn.Close()
	}

	return &App{Router: router}, cleanup, nil
}

func setupQueue(ch *amqp091.Channel, orders *repo.MySQLOrderRepo, carrier *sameday.Client, cfg configs.Config) {
	h := queue.NewAWBIssueHandler(orders, carrier, queue.AWBIssueConfig{
		PickupPoint: cfg.Sameday.PickupPoint,
		ServiceID:   7, // standard courier service
	})

	router := queue.NewRouter(ch, queue.WithPrefetch(10))
	router.Register("awb.create.q", queue.JSONHandler[usecase.InvoiceIssuedMsg]{HandleFunc: h.HandleIssued})

	if err := router.Start(); err != nil {
		panic(err)
	}
}

func setupKafkaListener(cfg configs.Config, svc *usecase.InvoiceService) {
	if len(cfg.Kafka.Brokers) == 0 {
		return
	}
	grp, err := kafka.NewGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID)
	if err != nil {
		panic(err)
	}

	h := kafka.NewPaymentCompletedHandler(svc)
	consumer := kafka.NewConsumer(grp, []string{cfg.Kafka.PaymentsTopic}, h.Handle)
	consumer.Logger = logging.New("kafka")

	go func() {
		if err := consumer.Start(context.Background()); err != nil {
			logging.Base().Error("kafka consumer stopped", "err", err)
		}
	}()
}

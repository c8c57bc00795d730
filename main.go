package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"fashionadmin/internal/cart"
	"fashionadmin/internal/catalog"
	"fashionadmin/internal/config"
	"fashionadmin/internal/database"
	"fashionadmin/internal/handlers"
	"fashionadmin/internal/logger"
	"fashionadmin/internal/middleware"
	"fashionadmin/internal/payment"
	"fashionadmin/internal/paypal"
	"fashionadmin/internal/store"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.AppEnv)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zl.Sync() }()

	if err := cfg.Validate(); err != nil {
		zl.Fatal("invalid configuration", zap.Error(err))
	}

	client, err := database.Connect(cfg.MongoURI)
	if err != nil {
		zl.Fatal("mongo connection failed", zap.Error(err))
	}
	db := client.Database(cfg.DBName)
	zl.Info("MongoDB connected", zap.String("db", db.Name()))

	if err := database.EnsureOrderIndexes(db, zl); err != nil {
		zl.Warn("order index warning", zap.Error(err))
	}
	if err := database.EnsureCartIndexes(db, zl); err != nil {
		zl.Warn("cart index warning", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	go pruneVisitors(ctx, limiter, cfg.RateLimit.Window, zl)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(cfg, db, limiter, zl),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("http server listening", zap.String("addr", srv.Addr), zap.String("paypal_mode", cfg.PayPal.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		zl.Info("shutdown signal received")
	case err := <-errCh:
		zl.Error("http server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("http shutdown", zap.Error(err))
	}
	if err := client.Disconnect(shutdownCtx); err != nil {
		zl.Error("mongo disconnect", zap.Error(err))
	}
}

func newRouter(cfg config.Config, db *mongo.Database, limiter *middleware.IPRateLimiter, zl *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	gateway := paypal.NewClient(paypal.Config{
		BaseURL:      cfg.PayPal.BaseURL(),
		ClientID:     cfg.PayPal.ClientID,
		ClientSecret: cfg.PayPal.ClientSecret,
		Currency:     cfg.PayPal.Currency,
		BrandName:    cfg.PayPal.BrandName,
		ReturnURL:    cfg.PayPal.ReturnURL(),
		CancelURL:    cfg.PayPal.CancelURL(),
		Timeout:      cfg.PayPal.Timeout,
	}, zl)
	verifier := paypal.NewWebhookVerifier(
		cfg.PayPal.StrictSignatureVerification,
		cfg.PayPal.WebhookID,
		&http.Client{Timeout: cfg.PayPal.Timeout},
		zl,
	)

	orders := store.NewMongoOrderStore(db)
	svc := payment.NewService(gateway, orders, catalog.NewMongoCatalog(db), cart.NewMongoCart(db), zl)
	reconciler := payment.NewReconciler(verifier, orders, zl)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(zl), middleware.CORS(cfg.PayPal.FrontendURL))

	r.GET("/healthz", handlers.Health(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}, zl))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// processor deliveries are not rate limited
	r.POST("/payments/webhook/paypal", handlers.PayPalWebhook(reconciler, zl))

	pay := r.Group("/payments")
	pay.Use(middleware.RateLimit(limiter), middleware.UserAuth(cfg.JWTSecret, zl))
	{
		pay.POST("/create", handlers.CreatePayment(svc, zl))
		pay.POST("/capture/:externalOrderId", handlers.CapturePayment(svc, zl))
		pay.GET("/status/:orderId", handlers.GetPaymentStatus(svc, zl))
		pay.PUT("/cancel/:orderId", handlers.CancelPayment(svc, zl))
		pay.GET("/orders", handlers.ListMyOrders(svc, zl))
	}

	admin := r.Group("/admin")
	admin.Use(middleware.RateLimit(limiter), middleware.AdminAuth(cfg.JWTSecret, zl))
	{
		admin.GET("/orders", handlers.ListOrders(svc, zl))
		admin.POST("/payments/reconcile/:orderId", handlers.ReconcileOrder(svc, zl))
	}

	return r
}

func pruneVisitors(ctx context.Context, limiter *middleware.IPRateLimiter, every time.Duration, zl *zap.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Prune(); n > 0 {
				zl.Debug("pruned idle rate limit buckets", zap.Int("count", n))
			}
		}
	}
}

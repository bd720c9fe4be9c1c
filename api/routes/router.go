package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/cartaviva/cartaviva-backend/api/controllers"
	"github.com/cartaviva/cartaviva-backend/api/middleware"
	checkoutsvc "github.com/cartaviva/cartaviva-backend/internal/checkout"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/redis"
)

type dependencyPinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gormDB *gorm.DB,
	dbP dependencyPinger,
	redisClient *redis.Client,
	checkoutService checkoutsvc.Service,
	transactionsService transactions.Service,
) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	var redisP dependencyPinger
	if redisClient != nil {
		redisP = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		if redisClient != nil {
			r.Use(middleware.Idempotency(redisClient, logg))
			r.Use(middleware.RateLimit(cfg.RateLimit, redisClient, logg))
		}

		r.Route("/transactions", func(r chi.Router) {
			r.Post("/", controllers.CreateTransaction(checkoutService, logg))
			r.Get("/", controllers.ListTransactions(transactionsService, logg))
			r.Get("/{transactionId}", controllers.TransactionDetail(transactionsService, logg))
			r.Put("/{transactionId}/accept", controllers.AcceptTransaction(transactionsService, logg))
			r.Put("/{transactionId}/reject", controllers.RejectTransaction(transactionsService, logg))
			r.Put("/{transactionId}/cancel", controllers.CancelTransaction(transactionsService, logg))
			r.Post("/{transactionId}/delivery", controllers.ConfirmDelivery(transactionsService, logg))
			r.Post("/{transactionId}/payment", controllers.ConfirmPayment(transactionsService, logg))
			r.Post("/{transactionId}/complete", controllers.CompleteTransaction(transactionsService, logg))
			r.Post("/{transactionId}/ratings", controllers.SubmitRating(transactionsService, logg))
			r.Post("/{transactionId}/disputes", controllers.OpenDispute(transactionsService, logg))
		})

		r.Get("/listings/{listingId}/availability", controllers.ListingAvailability(gormDB, logg))

		r.Route("/moderation", func(r chi.Router) {
			r.Use(middleware.RequireRole(enums.ActorRoleModerator, logg))
			r.Post("/transactions/{transactionId}/cancel", controllers.ModeratorCancel(transactionsService, logg))
			r.Post("/transactions/{transactionId}/disputes/resolve", controllers.ResolveDispute(transactionsService, logg))
		})
	})

	return r
}

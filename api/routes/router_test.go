package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	checkoutsvc "github.com/cartaviva/cartaviva-backend/internal/checkout"
	"github.com/cartaviva/cartaviva-backend/internal/transactions"
	"github.com/cartaviva/cartaviva-backend/pkg/auth"
	"github.com/cartaviva/cartaviva-backend/pkg/config"
	"github.com/cartaviva/cartaviva-backend/pkg/db/models"
	"github.com/cartaviva/cartaviva-backend/pkg/enums"
	"github.com/cartaviva/cartaviva-backend/pkg/logger"
	"github.com/cartaviva/cartaviva-backend/pkg/outbox"
)

type gormRunner struct {
	db *gorm.DB
}

func (r gormRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type routerFixture struct {
	handler http.Handler
	db      *gorm.DB
	cfg     *config.Config
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	dsn := "file:router_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Listing{},
		&models.ListingReservation{},
		&models.Transaction{},
		&models.TransactionItem{},
		&models.Rating{},
		&models.Dispute{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.JWT = config.JWTConfig{Secret: "router-secret", Issuer: "cartaviva-test", ExpirationMinutes: 60}
	cfg.Trade = config.TradeConfig{
		SellerResponseWindow: 24 * time.Hour,
		DeliveryWindow:       144 * time.Hour,
		BuyerConfirmWindow:   240 * time.Hour,
		RatingWindow:         336 * time.Hour,
		ReservationTTL:       24 * time.Hour,
		ShippingFlatCentimos: 600,
		TaxRatePercent:       "0",
	}

	logg := logger.New(logger.Options{ServiceName: "router-test", Output: io.Discard})
	outboxService := outbox.NewService(outbox.NewRepository(db), logg)
	transactionsRepo := transactions.NewRepository(db)

	transactionsService, err := transactions.NewService(transactionsRepo, gormRunner{db: db}, outboxService, cfg.Trade)
	if err != nil {
		t.Fatalf("transactions service: %v", err)
	}
	checkoutService, err := checkoutsvc.NewService(
		gormRunner{db: db},
		checkoutsvc.NewListingRepository(db),
		transactionsRepo,
		outboxService,
		cfg.Trade,
	)
	if err != nil {
		t.Fatalf("checkout service: %v", err)
	}

	handler := NewRouter(cfg, logg, db, okPinger{}, nil, checkoutService, transactionsService)
	return &routerFixture{handler: handler, db: db, cfg: cfg}
}

func (f *routerFixture) token(t *testing.T, userID uuid.UUID, role enums.ActorRole) string {
	t.Helper()
	token, err := auth.MintAccessToken(f.cfg.JWT, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func (f *routerFixture) seedListing(t *testing.T, sellerID uuid.UUID, qty int) models.Listing {
	t.Helper()
	listing := models.Listing{
		SellerID:      sellerID,
		CardName:      "Pikachu",
		SetCode:       "JU",
		Condition:     enums.CardConditionNearMint,
		Language:      "en",
		PriceCentimos: 12000,
		Quantity:      qty,
		AvailableQty:  qty,
		Status:        enums.ListingStatusActive,
	}
	if err := f.db.Create(&listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

func (f *routerFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func decodeData(t *testing.T, resp *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("parse envelope: %v (body %s)", err, resp.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, dest); err != nil {
		t.Fatalf("parse data: %v (body %s)", err, resp.Body.String())
	}
}

func TestHealthLive(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(t, http.MethodGet, "/health/live", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	var data map[string]string
	decodeData(t, resp, &data)
	if data["status"] != "live" {
		t.Fatalf("expected live got %q", data["status"])
	}
	if resp.Header().Get("X-CartaViva-Env") != "test" {
		t.Fatalf("expected env header, got %q", resp.Header().Get("X-CartaViva-Env"))
	}
}

func TestHealthReady(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(t, http.MethodGet, "/health/ready", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestAPIRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/transactions", "", nil)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCheckoutAndAcceptFlow(t *testing.T) {
	f := newRouterFixture(t)

	buyerID := uuid.New()
	sellerID := uuid.New()
	listing := f.seedListing(t, sellerID, 5)

	buyerToken := f.token(t, buyerID, enums.ActorRoleTrader)
	sellerToken := f.token(t, sellerID, enums.ActorRoleTrader)

	resp := f.do(t, http.MethodPost, "/api/v1/transactions", buyerToken, map[string]any{
		"payment_method": "cash",
		"lines": []map[string]any{
			{"listing_id": listing.ID, "qty": 2},
		},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d (body %s)", resp.Code, resp.Body.String())
	}

	var created struct {
		Groups []struct {
			SellerID    uuid.UUID `json:"seller_id"`
			Transaction *struct {
				ID            uuid.UUID `json:"ID"`
				Status        string    `json:"Status"`
				TotalCentimos int64     `json:"TotalCentimos"`
			} `json:"transaction"`
		} `json:"groups"`
	}
	decodeData(t, resp, &created)
	if len(created.Groups) != 1 {
		t.Fatalf("expected one seller group, got %d", len(created.Groups))
	}
	group := created.Groups[0]
	if group.Transaction == nil {
		t.Fatalf("expected transaction in group")
	}
	if group.Transaction.Status != string(enums.TransactionStatusPendingSellerResponse) {
		t.Fatalf("expected pending status got %s", group.Transaction.Status)
	}
	if group.Transaction.TotalCentimos != 24600 {
		t.Fatalf("expected total 24600 got %d", group.Transaction.TotalCentimos)
	}
	txnID := group.Transaction.ID

	// The hold shows up in net availability immediately.
	avail := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/listings/%s/availability", listing.ID), buyerToken, nil)
	if avail.Code != http.StatusOK {
		t.Fatalf("availability: expected 200 got %d", avail.Code)
	}
	var availability struct {
		AvailableQty int `json:"available_qty"`
	}
	decodeData(t, avail, &availability)
	if availability.AvailableQty != 3 {
		t.Fatalf("expected 3 available, got %d", availability.AvailableQty)
	}
	if body := avail.Body.String(); strings.Contains(body, "reserved_qty") || strings.Contains(body, "\"quantity\"") {
		t.Fatalf("availability leaks raw counters: %s", body)
	}

	// Buyer cannot accept on the seller's behalf.
	forbidden := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/transactions/%s/accept", txnID), buyerToken, nil)
	if forbidden.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", forbidden.Code)
	}

	accepted := f.do(t, http.MethodPut, fmt.Sprintf("/api/v1/transactions/%s/accept", txnID), sellerToken, nil)
	if accepted.Code != http.StatusOK {
		t.Fatalf("accept: expected 200 got %d (body %s)", accepted.Code, accepted.Body.String())
	}
	var acceptedTxn struct {
		Status string `json:"Status"`
	}
	decodeData(t, accepted, &acceptedTxn)
	if acceptedTxn.Status != string(enums.TransactionStatusAcceptedPendingDelivery) {
		t.Fatalf("expected accepted status got %s", acceptedTxn.Status)
	}

	// Detail is participants-only.
	stranger := f.token(t, uuid.New(), enums.ActorRoleTrader)
	denied := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/transactions/%s", txnID), stranger, nil)
	if denied.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for stranger got %d", denied.Code)
	}

	detail := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/transactions/%s", txnID), buyerToken, nil)
	if detail.Code != http.StatusOK {
		t.Fatalf("detail: expected 200 got %d", detail.Code)
	}

	list := f.do(t, http.MethodGet, "/api/v1/transactions?role=buyer", buyerToken, nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list: expected 200 got %d", list.Code)
	}
	var listed struct {
		Transactions []json.RawMessage `json:"transactions"`
	}
	decodeData(t, list, &listed)
	if len(listed.Transactions) != 1 {
		t.Fatalf("expected one listed transaction, got %d", len(listed.Transactions))
	}
}

func TestModerationRequiresModeratorRole(t *testing.T) {
	f := newRouterFixture(t)

	traderToken := f.token(t, uuid.New(), enums.ActorRoleTrader)
	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/moderation/transactions/%s/cancel", uuid.New()), traderToken, map[string]any{
		"reason": "fraudulent listing",
	})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestModeratorCancelFlow(t *testing.T) {
	f := newRouterFixture(t)

	buyerID := uuid.New()
	sellerID := uuid.New()
	listing := f.seedListing(t, sellerID, 3)

	buyerToken := f.token(t, buyerID, enums.ActorRoleTrader)
	created := f.do(t, http.MethodPost, "/api/v1/transactions", buyerToken, map[string]any{
		"payment_method": "sinpe",
		"lines": []map[string]any{
			{"listing_id": listing.ID, "qty": 1},
		},
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("checkout: expected 201 got %d (body %s)", created.Code, created.Body.String())
	}
	var checkout struct {
		Groups []struct {
			Transaction *struct {
				ID uuid.UUID `json:"ID"`
			} `json:"transaction"`
		} `json:"groups"`
	}
	decodeData(t, created, &checkout)
	txnID := checkout.Groups[0].Transaction.ID

	modToken := f.token(t, uuid.New(), enums.ActorRoleModerator)
	resp := f.do(t, http.MethodPost, fmt.Sprintf("/api/v1/moderation/transactions/%s/cancel", txnID), modToken, map[string]any{
		"reason": "listing violated marketplace rules",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("moderator cancel: expected 200 got %d (body %s)", resp.Code, resp.Body.String())
	}
	var cancelled struct {
		Status string `json:"Status"`
	}
	decodeData(t, resp, &cancelled)
	if cancelled.Status != string(enums.TransactionStatusCancelledByAdmin) {
		t.Fatalf("expected admin cancel status got %s", cancelled.Status)
	}

	avail := f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/listings/%s/availability", listing.ID), buyerToken, nil)
	var availability struct {
		AvailableQty int `json:"available_qty"`
	}
	decodeData(t, avail, &availability)
	if availability.AvailableQty != 3 {
		t.Fatalf("expected hold released back to 3, got %d", availability.AvailableQty)
	}
}

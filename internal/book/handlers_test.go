package book

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/thehouse/wager-engine/internal/access"
	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

func newTestRouter() (*chi.Mux, *Service) {
	st := store.NewMemoryStore()
	svc := NewService(st, access.StaticDirectory{"root": true}, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/markets", svc.HandleListMarkets)
		r.Post("/markets", svc.HandleCreateMarket)
		r.Get("/markets/{marketID}", svc.HandleGetMarket)
		r.Post("/markets/{marketID}/settle", svc.HandleSettleMarket)
		r.Post("/markets/{marketID}/shares", svc.HandleAddShare)
		r.Get("/markets/{marketID}/access", svc.HandleCanView)
		r.Post("/wagers", svc.HandlePlaceWager)
		r.Post("/deposits", svc.HandleDeposit)
		r.Post("/withdrawals", svc.HandleWithdraw)
		r.Get("/wallets/{userID}", svc.HandleGetWallet)
		r.Get("/wallets/{userID}/ledger", svc.HandleWalletLedger)
		r.Post("/events", svc.HandleCreateEvent)
		r.Post("/events/{eventID}/members", svc.HandleAddMember)
		r.Get("/events/{eventID}/treasury", svc.HandleEventTreasury)
	})
	return r, svc
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func createMarketJSON(t *testing.T, r http.Handler) CreateMarketResponse {
	t.Helper()
	rec := doJSON(t, r, http.MethodPost, "/api/v1/markets", map[string]any{
		"title":        "Derby",
		"creator_id":   "creator",
		"be_the_house": true,
		"margin":       "0.05",
		"outcomes": []map[string]any{
			{"title": "Red", "weight": 50},
			{"title": "Blue", "weight": 50},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[CreateMarketResponse](t, rec)
}

func TestHandleCreateMarket(t *testing.T) {
	r, _ := newTestRouter()

	resp := createMarketJSON(t, r)
	require.Equal(t, model.MarketOpen, resp.Market.Status)
	require.Len(t, resp.Outcomes, 2)
	require.Equal(t, "1.9", resp.Outcomes[0].DecimalOdds.String())

	rec := doJSON(t, r, http.MethodPost, "/api/v1/markets", map[string]any{
		"title":      "Solo",
		"creator_id": "creator",
		"outcomes":   []map[string]any{{"title": "Only", "weight": 50}},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/markets", map[string]any{
		"creator_id": "creator",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code, "missing title")
}

func TestWagerLifecycleOverHTTP(t *testing.T) {
	r, _ := newTestRouter()
	market := createMarketJSON(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/deposits", map[string]any{
		"user_id": "alice", "amount": "100",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, r, http.MethodPost, "/api/v1/wagers", map[string]any{
		"user_id": "alice", "outcome_id": market.Outcomes[0].ID, "stake": "30",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	wager := decode[model.Wager](t, rec)
	require.Equal(t, "57", wager.PotentialPayout.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	wallet := decode[model.Wallet](t, rec)
	require.Equal(t, "70", wallet.Balance.String())

	rec = doJSON(t, r, http.MethodPost, "/api/v1/markets/"+market.Market.ID+"/settle", map[string]any{
		"winning_outcome_id": market.Outcomes[0].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	book := decode[BookSummary](t, rec)
	require.Equal(t, model.MarketSettled, book.Market.Status)
	require.Len(t, book.Wagers, 1)
	require.Equal(t, "-27", book.HouseNet.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/alice", nil)
	wallet = decode[model.Wallet](t, rec)
	require.Equal(t, "127", wallet.Balance.String())

	rec = doJSON(t, r, http.MethodGet, "/api/v1/wallets/alice/ledger", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]model.LedgerEntry](t, rec)
	require.Len(t, entries, 3)
}

func TestWagerErrorStatuses(t *testing.T) {
	r, _ := newTestRouter()
	market := createMarketJSON(t, r)

	// Broke bettor.
	rec := doJSON(t, r, http.MethodPost, "/api/v1/wagers", map[string]any{
		"user_id": "alice", "outcome_id": market.Outcomes[0].ID, "stake": "30",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	// Unknown outcome.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/wagers", map[string]any{
		"user_id": "alice", "outcome_id": "missing", "stake": "30",
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Over the default 100.00 limit.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/deposits", map[string]any{
		"user_id": "alice", "amount": "500",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/wagers", map[string]any{
		"user_id": "alice", "outcome_id": market.Outcomes[0].ID, "stake": "150",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Settled market closes wagering.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/markets/"+market.Market.ID+"/settle", map[string]any{
		"winning_outcome_id": market.Outcomes[0].ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = doJSON(t, r, http.MethodPost, "/api/v1/wagers", map[string]any{
		"user_id": "alice", "outcome_id": market.Outcomes[0].ID, "stake": "10",
	})
	require.Equal(t, http.StatusConflict, rec.Code)

	// Withdrawing more than the balance.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/withdrawals", map[string]any{
		"user_id": "alice", "amount": "100000",
	})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestEventAndAccessOverHTTP(t *testing.T) {
	r, _ := newTestRouter()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/events", map[string]any{
		"name": "Poker Night", "creator_id": "organizer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	event := decode[model.Event](t, rec)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/events/"+event.ID+"/members", map[string]any{
		"user_id": "member",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/markets", map[string]any{
		"title":      "Derby",
		"creator_id": "organizer",
		"event_id":   event.ID,
		"margin":     "0.05",
		"outcomes": []map[string]any{
			{"title": "Red", "weight": 50},
			{"title": "Blue", "weight": 50},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	market := decode[CreateMarketResponse](t, rec)

	canView := func(userID string) bool {
		rec := doJSON(t, r, http.MethodGet,
			"/api/v1/markets/"+market.Market.ID+"/access?user_id="+userID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		return decode[map[string]bool](t, rec)["can_view"]
	}

	require.True(t, canView("organizer"), "creator")
	require.True(t, canView("member"), "event member")
	require.True(t, canView("root"), "superuser")
	require.False(t, canView("stranger"))
	require.False(t, canView(""), "anonymous")

	rec = doJSON(t, r, http.MethodPost, "/api/v1/markets/"+market.Market.ID+"/shares", map[string]any{
		"user_id": "stranger",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, canView("stranger"), "explicit share grants access")

	rec = doJSON(t, r, http.MethodGet, "/api/v1/events/"+event.ID+"/treasury", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	treasury := decode[model.EventTreasury](t, rec)
	require.True(t, treasury.Balance.IsZero())
}

func TestGetMarketNotFound(t *testing.T) {
	r, _ := newTestRouter()
	rec := doJSON(t, r, http.MethodGet, "/api/v1/markets/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

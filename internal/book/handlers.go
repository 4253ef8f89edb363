package book

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/thehouse/wager-engine/internal/ledger"
	"github.com/thehouse/wager-engine/internal/model"
	"github.com/thehouse/wager-engine/internal/store"
)

// --- Request/Response types ---

// CreateMarketRequest is the JSON body for market creation.
type CreateMarketRequest struct {
	Title       string          `json:"title"`
	CreatorID   string          `json:"creator_id"`
	HouseID     string          `json:"house_id,omitempty"`
	BeTheHouse  bool            `json:"be_the_house,omitempty"`
	EventID     string          `json:"event_id,omitempty"`
	Margin      decimal.Decimal `json:"margin"`        // 0 → default 0.05
	MaxBetLimit decimal.Decimal `json:"max_bet_limit"` // 0 → default 100.00
	ClosesAt    *time.Time      `json:"closes_at,omitempty"`
	Outcomes    []OutcomeInput  `json:"outcomes"`
}

// CreateMarketResponse is the JSON body returned from POST /markets.
type CreateMarketResponse struct {
	Market   model.Market    `json:"market"`
	Outcomes []model.Outcome `json:"outcomes"`
}

// PlaceWagerRequest is the JSON body for POST /wagers.
type PlaceWagerRequest struct {
	UserID    string          `json:"user_id"`
	OutcomeID string          `json:"outcome_id"`
	Stake     decimal.Decimal `json:"stake"`
}

// SettleRequest is the JSON body for POST /markets/{marketID}/settle.
type SettleRequest struct {
	WinningOutcomeID string `json:"winning_outcome_id"`
}

// DepositRequest is the JSON body for wallet deposits and withdrawals.
type DepositRequest struct {
	UserID string          `json:"user_id"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// CreateEventRequest is the JSON body for POST /events.
type CreateEventRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	CreatorID    string `json:"creator_id"`
	DefaultHouse string `json:"default_house,omitempty"`
}

// MemberRequest adds a user to an event or grants a market share.
type MemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
}

// defaultMargin applies when market creation omits the margin.
var defaultMargin = decimal.New(5, -2) // 0.05

// --- HTTP Handlers ---

// HandleCreateMarket handles POST /api/v1/markets
func (s *Service) HandleCreateMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		writeError(w, "title is required", http.StatusBadRequest)
		return
	}
	if req.CreatorID == "" {
		writeError(w, "creator_id is required", http.StatusBadRequest)
		return
	}

	margin := req.Margin
	if margin.IsZero() {
		margin = defaultMargin
	}

	market, outcomes, err := s.CreateMarket(r.Context(), CreateMarketParams{
		Title:       req.Title,
		CreatorID:   req.CreatorID,
		HouseID:     req.HouseID,
		BeTheHouse:  req.BeTheHouse,
		EventID:     req.EventID,
		Margin:      margin,
		MaxBetLimit: req.MaxBetLimit,
		ClosesAt:    req.ClosesAt,
		Outcomes:    req.Outcomes,
	})
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, CreateMarketResponse{Market: *market, Outcomes: outcomes})
}

// HandleListMarkets handles GET /api/v1/markets
// Returns all markets, optionally filtered by ?event_id=<id>.
func (s *Service) HandleListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.store.ListMarkets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	if eventID := r.URL.Query().Get("event_id"); eventID != "" {
		filtered := []model.Market{}
		for _, m := range markets {
			if m.EventID == eventID {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}

	writeJSON(w, http.StatusOK, markets)
}

// HandleGetMarket handles GET /api/v1/markets/{marketID}
// Returns the market, its outcomes, and (once settled) the wager book.
func (s *Service) HandleGetMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	summary, err := s.MarketBook(r.Context(), marketID)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

// HandlePlaceWager handles POST /api/v1/wagers
func (s *Service) HandlePlaceWager(w http.ResponseWriter, r *http.Request) {
	var req PlaceWagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.OutcomeID == "" {
		writeError(w, "outcome_id is required", http.StatusBadRequest)
		return
	}

	wager, err := s.PlaceWager(r.Context(), req.UserID, req.OutcomeID, req.Stake)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, wager)
}

// HandleSettleMarket handles POST /api/v1/markets/{marketID}/settle
func (s *Service) HandleSettleMarket(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.WinningOutcomeID == "" {
		writeError(w, "winning_outcome_id is required", http.StatusBadRequest)
		return
	}

	if err := s.SettleMarket(r.Context(), marketID, req.WinningOutcomeID); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	summary, err := s.MarketBook(r.Context(), marketID)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleListUserWagers handles GET /api/v1/users/{userID}/wagers
func (s *Service) HandleListUserWagers(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wagers, err := s.store.ListWagersByUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list wagers", http.StatusInternalServerError)
		return
	}
	if wagers == nil {
		wagers = []model.Wager{}
	}

	writeJSON(w, http.StatusOK, wagers)
}

// HandleBettorNet handles GET /api/v1/markets/{marketID}/net/{userID}
func (s *Service) HandleBettorNet(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	userID := chi.URLParam(r, "userID")

	net, err := s.BettorNet(r.Context(), marketID, userID)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"net": net})
}

// HandleDeposit handles POST /api/v1/deposits
func (s *Service) HandleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	balance, err := ledger.Deposit(r.Context(), s.store, req.UserID, req.Amount, req.Note)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// HandleWithdraw handles POST /api/v1/withdrawals
func (s *Service) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	balance, err := ledger.Withdraw(r.Context(), s.store, req.UserID, req.Amount, req.Note)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": balance})
}

// HandleGetWallet handles GET /api/v1/wallets/{userID}
// Creates the wallet with a zero balance on first access.
func (s *Service) HandleGetWallet(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	wallet, err := ledger.EnsureWallet(r.Context(), s.store, userID)
	if err != nil {
		writeError(w, "failed to load wallet", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, wallet)
}

// HandleWalletLedger handles GET /api/v1/wallets/{userID}/ledger
func (s *Service) HandleWalletLedger(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	entries, err := s.store.ListLedgerEntries(r.Context(), model.OwnerUser, userID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleCreateEvent handles POST /api/v1/events
func (s *Service) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		writeError(w, "name is required", http.StatusBadRequest)
		return
	}
	if req.CreatorID == "" {
		writeError(w, "creator_id is required", http.StatusBadRequest)
		return
	}

	event, err := s.CreateEvent(r.Context(), req)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// HandleAddMember handles POST /api/v1/events/{eventID}/members
func (s *Service) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleMember
	}

	if _, err := s.store.GetEvent(r.Context(), eventID); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	membership := &model.EventMembership{
		EventID:   eventID,
		UserID:    req.UserID,
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddMembership(r.Context(), membership); err != nil {
		writeError(w, "failed to add member", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleAddShare handles POST /api/v1/markets/{marketID}/shares
// Grants a single user visibility into a market outside its event.
func (s *Service) HandleAddShare(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")

	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if _, err := s.store.GetMarket(r.Context(), marketID); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	share := &model.MarketShare{
		MarketID:  marketID,
		UserID:    req.UserID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddMarketShare(r.Context(), share); err != nil {
		writeError(w, "failed to add share", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleEventTreasury handles GET /api/v1/events/{eventID}/treasury
func (s *Service) HandleEventTreasury(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	if _, err := s.store.GetEvent(r.Context(), eventID); err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}
	treasury, err := ledger.EnsureTreasury(r.Context(), s.store, eventID)
	if err != nil {
		writeError(w, "failed to load treasury", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, treasury)
}

// HandleTreasuryLedger handles GET /api/v1/events/{eventID}/treasury/ledger
func (s *Service) HandleTreasuryLedger(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	entries, err := s.store.ListLedgerEntries(r.Context(), model.OwnerEvent, eventID)
	if err != nil {
		writeError(w, "failed to load ledger", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LedgerEntry{}
	}

	writeJSON(w, http.StatusOK, entries)
}

// HandleCanView handles GET /api/v1/markets/{marketID}/access?user_id=<id>
func (s *Service) HandleCanView(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketID")
	userID := r.URL.Query().Get("user_id")

	ok, err := s.CanView(r.Context(), userID, marketID)
	if err != nil {
		writeError(w, err.Error(), errStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"can_view": ok})
}

// errStatus maps engine and store errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrMarketNotFound),
		errors.Is(err, store.ErrOutcomeNotFound),
		errors.Is(err, store.ErrWagerNotFound),
		errors.Is(err, store.ErrWalletNotFound),
		errors.Is(err, store.ErrTreasuryNotFound),
		errors.Is(err, store.ErrEventNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrMarketNotOpen),
		errors.Is(err, ErrStakeExceedsLimit):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidStake),
		errors.Is(err, ErrTooFewOutcomes),
		errors.Is(err, ErrInvalidMargin),
		errors.Is(err, ErrOutcomeNotInMarket),
		errors.Is(err, ledger.ErrInvalidAmount):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

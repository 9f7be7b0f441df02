package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"github.com/xraph/tierpay"
	"github.com/xraph/tierpay/event"
	"github.com/xraph/tierpay/provider"
	"github.com/xraph/tierpay/types"
)

// DefaultDecimals is the settlement-token precision assumed for display.
const DefaultDecimals int32 = 18

// Handler serves the HTTP API for a billing ledger, a royalty gate or both.
type Handler struct {
	ledger   *tierpay.Ledger
	gate     *tierpay.Gate
	decimals int32
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLedger mounts the billing routes.
func WithLedger(l *tierpay.Ledger) HandlerOption { return func(h *Handler) { h.ledger = l } }

// WithGate mounts the royalty routes.
func WithGate(g *tierpay.Gate) HandlerOption { return func(h *Handler) { h.gate = g } }

// WithDecimals sets the settlement-token precision used to parse and render
// token quantities.
func WithDecimals(d int32) HandlerOption { return func(h *Handler) { h.decimals = d } }

// WithLogger sets the handler logger.
func WithLogger(l *slog.Logger) HandlerOption { return func(h *Handler) { h.logger = l } }

// NewHandler creates a Handler.
func NewHandler(opts ...HandlerOption) *Handler {
	h := &Handler{decimals: DefaultDecimals, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ──────────────────────────────────────────────────
// Views
// ──────────────────────────────────────────────────

// Amount renders a base-unit quantity together with its token-denominated value.
type Amount struct {
	Base  string `json:"base"`
	Value string `json:"value"`
}

func (h *Handler) amount(a *uint256.Int) Amount {
	return Amount{Base: types.String(a), Value: types.FormatUnits(a, h.decimals)}
}

type accountView struct {
	User           common.Address `json:"user"`
	TotalDeposited Amount         `json:"total_deposited"`
	TotalUsed      Amount         `json:"total_used"`
	Available      Amount         `json:"available"`
	LastDepositAt  time.Time      `json:"last_deposit_at"`
}

type tierView struct {
	Threshold uint64 `json:"threshold"`
	Rate      Amount `json:"rate"`
}

type providerView struct {
	Address      common.Address `json:"address"`
	Registered   bool           `json:"registered"`
	RoyaltyBps   uint64         `json:"royalty_bps"`
	FallbackRate Amount         `json:"fallback_rate"`
	Balance      Amount         `json:"balance"`
	Tiers        []tierView     `json:"tiers"`
}

func (h *Handler) providerView(p *provider.Provider) providerView {
	tiers := make([]tierView, len(p.Tiers))
	for i, t := range p.Tiers {
		tiers[i] = tierView{Threshold: t.Threshold, Rate: h.amount(t.Rate)}
	}
	return providerView{
		Address:      p.Address,
		Registered:   p.Registered,
		RoyaltyBps:   p.RoyaltyBps,
		FallbackRate: h.amount(p.FallbackRate),
		Balance:      h.amount(p.Balance),
		Tiers:        tiers,
	}
}

type quoteView struct {
	User          common.Address `json:"user"`
	Provider      common.Address `json:"provider"`
	Units         uint64         `json:"units"`
	PriorUnits    uint64         `json:"prior_units"`
	BaseCost      Amount         `json:"base_cost"`
	Discount      Amount         `json:"discount"`
	Cost          Amount         `json:"cost"`
	Royalty       Amount         `json:"royalty"`
	ProviderShare Amount         `json:"provider_share"`
}

func (h *Handler) quoteView(q *tierpay.UsageQuote) quoteView {
	return quoteView{
		User:          q.User,
		Provider:      q.Provider,
		Units:         q.Units,
		PriorUnits:    q.PriorUnits,
		BaseCost:      h.amount(q.BaseCost),
		Discount:      h.amount(q.Discount),
		Cost:          h.amount(q.Cost),
		Royalty:       h.amount(q.Royalty),
		ProviderShare: h.amount(q.ProviderShare),
	}
}

// ──────────────────────────────────────────────────
// Billing handlers
// ──────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	a, err := h.ledger.Account(r.Context(), caller)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accountView{
		User:           a.User,
		TotalDeposited: h.amount(a.TotalDeposited),
		TotalUsed:      h.amount(a.TotalUsed),
		Available:      h.amount(a.Available()),
		LastDepositAt:  a.LastDepositAt,
	})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := types.ParseUnits(req.Amount.String(), h.decimals)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.Deposit(r.Context(), caller, amount); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]Amount{"deposited": h.amount(amount)})
}

func (h *Handler) handleWithdrawUnused(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.ledger.WithdrawUnused)
}

func (h *Handler) handleProviderWithdraw(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.ledger.ProviderWithdraw)
}

func (h *Handler) handleWithdrawRoyalty(w http.ResponseWriter, r *http.Request) {
	h.withdraw(w, r, h.ledger.WithdrawRoyalty)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, caller common.Address) error) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := fn(r.Context(), caller); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type usageRequest struct {
	User     common.Address `json:"user"`
	Provider common.Address `json:"provider"`
	Units    uint64         `json:"units"`
}

func (h *Handler) handleApplyUsage(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req usageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !withinStoreRange(w, "units", req.Units) {
		return
	}
	q, err := h.ledger.ApplyUsage(r.Context(), caller, req.User, req.Provider, req.Units)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.quoteView(q))
}

func (h *Handler) handleQuoteUsage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	user, ok := parseAddress(w, query.Get("user"), "user")
	if !ok {
		return
	}
	prov, ok := parseAddress(w, query.Get("provider"), "provider")
	if !ok {
		return
	}
	units, err := strconv.ParseUint(query.Get("units"), 10, 63)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "units must be an integer in [0, 2^63)")
		return
	}
	q, err := h.ledger.QuoteUsage(r.Context(), user, prov, units)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.quoteView(q))
}

func (h *Handler) handleListProviders(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}
	opts := provider.ListOpts{
		RegisteredOnly: r.URL.Query().Get("registered") == "true",
		Limit:          limit,
		Offset:         offset,
	}
	providers, err := h.ledger.ListProviders(r.Context(), opts)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	views := make([]providerView, len(providers))
	for i, p := range providers {
		views[i] = h.providerView(p)
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *Handler) handleGetProvider(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, chi.URLParam(r, "address"), "address")
	if !ok {
		return
	}
	p, err := h.ledger.Provider(r.Context(), addr)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, h.providerView(p))
}

type registerRequest struct {
	RoyaltyBps   uint64          `json:"royalty_bps"`
	FallbackRate decimal.Decimal `json:"fallback_rate"`
}

func (h *Handler) handleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rate, err := types.ParseUnits(req.FallbackRate.String(), h.decimals)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ledger.RegisterProvider(r.Context(), caller, req.RoyaltyBps, rate); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	h.respondWithProvider(w, r, caller, http.StatusCreated)
}

type tiersRequest struct {
	Thresholds []uint64          `json:"thresholds"`
	Rates      []decimal.Decimal `json:"rates"`
}

func (h *Handler) handleSetTiers(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req tiersRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	for _, t := range req.Thresholds {
		if !withinStoreRange(w, "thresholds", t) {
			return
		}
	}
	rates := make([]*uint256.Int, len(req.Rates))
	for i, d := range req.Rates {
		rate, err := types.ParseUnits(d.String(), h.decimals)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		rates[i] = rate
	}
	if err := h.ledger.SetProviderTiers(r.Context(), caller, req.Thresholds, rates); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	h.respondWithProvider(w, r, caller, http.StatusOK)
}

func (h *Handler) handleUnregisterProvider(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	if err := h.ledger.UnregisterProvider(r.Context(), caller); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondWithProvider(w http.ResponseWriter, r *http.Request, addr common.Address, status int) {
	p, err := h.ledger.Provider(r.Context(), addr)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, status, h.providerView(p))
}

func (h *Handler) handleGetPlatform(w http.ResponseWriter, r *http.Request) {
	st, err := h.ledger.Platform(r.Context())
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"config":          st.Config,
		"royalty_accrued": h.amount(st.RoyaltyAccrued),
	})
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	opts, ok := eventFilter(w, r)
	if !ok {
		return
	}
	events, err := h.ledger.Events(r.Context(), opts)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

// ──────────────────────────────────────────────────
// Royalty handlers
// ──────────────────────────────────────────────────

func (h *Handler) handleGetRoyaltyConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.gate.Config(r.Context())
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

type splitsRequest struct {
	ManufacturerBP uint64 `json:"manufacturer_bp"`
	PartnerBP      uint64 `json:"partner_bp"`
	CreatorBP      uint64 `json:"creator_bp"`
}

func (h *Handler) handleSetSplits(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req splitsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.gate.SetRoyaltySplits(r.Context(), caller, req.ManufacturerBP, req.PartnerBP, req.CreatorBP); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	h.handleGetRoyaltyConfig(w, r)
}

func (h *Handler) handleGetRoyaltyToken(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	tok, err := h.gate.Token(r.Context(), tokenID)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, tok)
}

func (h *Handler) handleQuoteRoyalty(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	charge, err := h.gate.Quote(r.Context(), tokenID)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"token_id": charge.TokenID,
		"required": h.amount(charge.Required),
		"shares":   charge.Shares,
	})
}

type ownerRequest struct {
	Owner common.Address `json:"owner"`
}

func (h *Handler) handleSetRoyaltyOwner(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req ownerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.gate.SetRoyaltyOwner(r.Context(), caller, tokenID, req.Owner); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	h.handleGetRoyaltyToken(w, r)
}

type priceRequest struct {
	// Price is the royalty in ether; it is stored in wei.
	Price decimal.Decimal `json:"price"`
}

func (h *Handler) handleSetRoyaltyPrice(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	tokenID, ok := parseTokenID(w, r)
	if !ok {
		return
	}
	var req priceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wei, err := types.ParseUnits(req.Price.String(), 18)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.gate.SetRoyaltyWei(r.Context(), caller, tokenID, wei); err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	h.handleGetRoyaltyToken(w, r)
}

func (h *Handler) handleListRoyaltyEvents(w http.ResponseWriter, r *http.Request) {
	opts, ok := eventFilter(w, r)
	if !ok {
		return
	}
	events, err := h.gate.Events(r.Context(), opts)
	if err != nil {
		h.respondWithEngineError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return caller, ok
}

// respondWithEngineError maps engine errors onto HTTP statuses.
func (h *Handler) respondWithEngineError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("api: request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	respondWithError(w, status, err.Error())
}

func statusFor(err error) int {
	var verr tierpay.ValidationError
	switch {
	case tierpay.IsNotFound(err):
		return http.StatusNotFound
	case tierpay.IsAuthError(err):
		return http.StatusForbidden
	case errors.As(err, &verr),
		errors.Is(err, tierpay.ErrInvalidInput),
		errors.Is(err, tierpay.ErrInvalidAmount),
		errors.Is(err, tierpay.ErrInvalidUsage),
		errors.Is(err, tierpay.ErrInvalidRoyaltyOwner),
		errors.Is(err, tierpay.ErrTiersNotAscending),
		errors.Is(err, tierpay.ErrTierLengthMismatch),
		errors.Is(err, tierpay.ErrSplitsMustSumToDenominator),
		errors.Is(err, tierpay.ErrOverflow):
		return http.StatusBadRequest
	case tierpay.IsBalanceError(err),
		errors.Is(err, tierpay.ErrNoBalance),
		errors.Is(err, tierpay.ErrProviderNotRegistered),
		errors.Is(err, tierpay.ErrNotConfigured):
		return http.StatusUnprocessableEntity
	case errors.Is(err, tierpay.ErrDepositLocked),
		errors.Is(err, tierpay.ErrReentrantCall):
		return http.StatusConflict
	case tierpay.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// withinStoreRange rejects counts the SQL and Mongo backends would store as
// negative BIGINT/int64 values.
func withinStoreRange(w http.ResponseWriter, field string, v uint64) bool {
	if v > math.MaxInt64 {
		respondWithError(w, http.StatusBadRequest, field+" must be below 2^63")
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, s, field string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondWithError(w, http.StatusBadRequest, field+" must be a hex address")
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseTokenID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	tokenID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 63)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "token id must be an integer in [0, 2^63)")
		return 0, false
	}
	return tokenID, true
}

func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, p.name+" must be a non-negative integer")
			return 0, 0, false
		}
		*p.dst = n
	}
	return limit, offset, true
}

func eventFilter(w http.ResponseWriter, r *http.Request) (event.ListOpts, bool) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return event.ListOpts{}, false
	}
	query := r.URL.Query()
	opts := event.ListOpts{
		Kind:   event.Kind(query.Get("kind")),
		Limit:  limit,
		Offset: offset,
	}
	if raw := query.Get("account"); raw != "" {
		if opts.Account, ok = parseAddress(w, raw, "account"); !ok {
			return event.ListOpts{}, false
		}
	}
	if raw := query.Get("token_id"); raw != "" {
		tokenID, err := strconv.ParseUint(raw, 10, 63)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "token_id must be an integer in [0, 2^63)")
			return event.ListOpts{}, false
		}
		opts.TokenID = tokenID
	}
	if raw := query.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return event.ListOpts{}, false
		}
		opts.Since = since
	}
	return opts, true
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response) //nolint:errcheck // client went away
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

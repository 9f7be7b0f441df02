package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tierpay"
	"github.com/xraph/tierpay/auth"
	"github.com/xraph/tierpay/erc20"
	"github.com/xraph/tierpay/store/memory"
	"github.com/xraph/tierpay/treasury"
)

var (
	secret = []byte("test-secret")

	token   = common.HexToAddress("0x1000")
	self    = common.HexToAddress("0x1001")
	vaultAt = common.HexToAddress("0x1002")
	gov     = common.HexToAddress("0x1003")
	alice   = common.HexToAddress("0x1004")
	prov    = common.HexToAddress("0x1005")
)

type apiEnv struct {
	server *httptest.Server
	tokens *erc20.Ledger
	ledger *tierpay.Ledger
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokens := erc20.New(erc20.WithLogger(logger))
	authority := auth.NewMemory(gov)
	authority.Grant(auth.RoleGovernor, gov)
	authority.Grant(auth.RoleUpdater, gov)

	reserve := treasury.New(vaultAt, tokens, authority, logger)
	require.NoError(t, reserve.SetPermission(ctx, gov, treasury.PermDepositor, self, true))
	require.NoError(t, reserve.SetPermission(ctx, gov, treasury.PermSpender, self, true))
	require.NoError(t, reserve.SetPermission(ctx, gov, treasury.PermReserveToken, token, true))

	l := tierpay.New(memory.New(),
		tierpay.WithLogger(logger),
		tierpay.WithAddress(self),
		tierpay.WithTokens(tokens),
		tierpay.WithReserve(reserve),
		tierpay.WithAuthority(authority),
	)
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.SetSettlementToken(ctx, gov, token))

	g := tierpay.NewGate(memory.New(),
		tierpay.WithLogger(logger),
		tierpay.WithAuthority(authority),
	)
	require.NoError(t, g.Start(ctx))

	h := NewHandler(WithLedger(l), WithGate(g), WithLogger(logger))
	srv := httptest.NewServer(NewRouter(h, secret))
	t.Cleanup(func() {
		srv.Close()
		l.Stop(ctx) //nolint:errcheck // test teardown
		g.Stop(ctx) //nolint:errcheck // test teardown
	})
	return &apiEnv{server: srv, tokens: tokens, ledger: l}
}

func (e *apiEnv) do(t *testing.T, as common.Address, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	if as != (common.Address{}) {
		tok, err := IssueToken(secret, as, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func TestHealthIsPublic(t *testing.T) {
	env := newAPIEnv(t)
	resp, body := env.do(t, common.Address{}, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthentication(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, common.Address{}, http.MethodGet, "/v1/account", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for name, tok := range map[string]string{
		"wrong secret": mustSign(t, []byte("other"), jwt.MapClaims{"sub": alice.Hex(), "exp": time.Now().Add(time.Minute).Unix()}),
		"expired":      mustSign(t, secret, jwt.MapClaims{"sub": alice.Hex(), "exp": time.Now().Add(-time.Minute).Unix()}),
		"no expiry":    mustSign(t, secret, jwt.MapClaims{"sub": alice.Hex()}),
		"not address":  mustSign(t, secret, jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Minute).Unix()}),
	} {
		t.Run(name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.server.URL+"/v1/account", nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+tok)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func mustSign(t *testing.T, key []byte, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseTokenRoundTrip(t *testing.T) {
	tok, err := IssueToken(secret, alice, time.Minute)
	require.NoError(t, err)
	got, err := ParseToken(secret, tok)
	require.NoError(t, err)
	assert.Equal(t, alice, got)
}

func TestBillingFlow(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	resp, body := env.do(t, prov, http.MethodPost, "/v1/providers", map[string]any{
		"royalty_bps":   0,
		"fallback_rate": "0.000000000000000003",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = env.do(t, prov, http.MethodPut, "/v1/providers/me/tiers", map[string]any{
		"thresholds": []uint64{100, 200},
		"rates":      []string{"0.000000000000000001", "0.000000000000000002"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Len(t, body["tiers"], 2)

	deposit := tierpay.NewAmount(1000)
	require.NoError(t, env.tokens.Mint(ctx, token, alice, deposit))
	require.NoError(t, env.tokens.Approve(ctx, token, alice, self, deposit))

	resp, body = env.do(t, alice, http.MethodPost, "/v1/deposits", map[string]any{"amount": "0.000000000000001"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	resp, body = env.do(t, alice, http.MethodGet, "/v1/account", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	deposited := body["total_deposited"].(map[string]any)
	assert.Equal(t, "1000", deposited["base"])
	assert.Equal(t, "0.000000000000001", deposited["value"])

	path := fmt.Sprintf("/v1/usage/quote?user=%s&provider=%s&units=250", alice.Hex(), prov.Hex())
	resp, body = env.do(t, alice, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "450", body["cost"].(map[string]any)["base"])

	usage := map[string]any{"user": alice.Hex(), "provider": prov.Hex(), "units": 250}
	resp, _ = env.do(t, alice, http.MethodPost, "/v1/usage", usage)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, gov, http.MethodPost, "/v1/usage", usage)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "450", body["cost"].(map[string]any)["base"])

	resp, body = env.do(t, alice, http.MethodGet, "/v1/providers/"+prov.Hex(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "450", body["balance"].(map[string]any)["base"])

	resp, _ = env.do(t, prov, http.MethodPost, "/v1/withdrawals/provider", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	bal, err := env.tokens.BalanceOf(ctx, token, prov)
	require.NoError(t, err)
	assert.Equal(t, uint64(450), bal.Uint64())

	resp, _ = env.do(t, prov, http.MethodPost, "/v1/withdrawals/provider", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestBadRequests(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, alice, http.MethodGet, "/v1/usage/quote?user=nope", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodPost, "/v1/deposits", map[string]any{"amount": "-1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodPost, "/v1/deposits", map[string]any{"amount": "1", "extra": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, "/v1/providers/"+prov.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, "/v1/events?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, "/v1/royalty/tokens/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCountsBeyondStoreRangeAreRejected(t *testing.T) {
	env := newAPIEnv(t)
	const tooBig = uint64(math.MaxInt64) + 1

	resp, body := env.do(t, gov, http.MethodPost, "/v1/usage", map[string]any{
		"user": alice.Hex(), "provider": prov.Hex(), "units": tooBig,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "units")

	resp, _ = env.do(t, prov, http.MethodPut, "/v1/providers/me/tiers", map[string]any{
		"thresholds": []uint64{tooBig}, "rates": []string{"1"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet,
		fmt.Sprintf("/v1/usage/quote?user=%s&provider=%s&units=%d", alice.Hex(), prov.Hex(), tooBig), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, fmt.Sprintf("/v1/royalty/tokens/%d", tooBig), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, fmt.Sprintf("/v1/events?token_id=%d", tooBig), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRoyaltyRoutes(t *testing.T) {
	env := newAPIEnv(t)

	resp, body := env.do(t, alice, http.MethodGet, "/v1/royalty/config", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 4000, body["manufacturer_bp"])

	splits := map[string]any{"manufacturer_bp": 5000, "partner_bp": 2500, "creator_bp": 2500}
	resp, _ = env.do(t, alice, http.MethodPut, "/v1/royalty/splits", splits)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = env.do(t, gov, http.MethodPut, "/v1/royalty/splits", splits)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 5000, body["manufacturer_bp"])

	resp, _ = env.do(t, gov, http.MethodPut, "/v1/royalty/splits", map[string]any{"manufacturer_bp": 1, "partner_bp": 1, "creator_bp": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, alice, http.MethodGet, "/v1/royalty/tokens/7", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{tierpay.ErrNotFound, http.StatusNotFound},
		{tierpay.ErrUnauthorized, http.StatusForbidden},
		{tierpay.ValidationError{Field: "x", Message: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", tierpay.ErrTiersNotAscending), http.StatusBadRequest},
		{tierpay.ErrInsufficientDeposit, http.StatusUnprocessableEntity},
		{tierpay.ErrDepositLocked, http.StatusConflict},
		{tierpay.ErrOracleUnavailable, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ganger/internal/auth"
	"ganger/internal/config"
	"ganger/internal/gang"
	"ganger/internal/ledger"
)

const testUser = "0b6d2f0e-3f1e-4d5c-9f59-6a3c1f6f1a01"

type fakeAuth struct{}

func (fakeAuth) SignUp(_ context.Context, email, _, username string) (auth.Session, error) {
	return auth.Session{AccessToken: "tok", User: auth.User{ID: testUser, Email: email, UserMetadata: map[string]any{"username": username}}}, nil
}

func (fakeAuth) Login(_ context.Context, email, password string) (auth.Session, error) {
	if password != "hunter2" {
		return auth.Session{}, fmt.Errorf("invalid login credentials")
	}
	return auth.Session{AccessToken: "tok", User: auth.User{ID: testUser, Email: email}}, nil
}

func (fakeAuth) Refresh(_ context.Context, refreshToken string) (auth.Session, error) {
	if refreshToken != "r1" {
		return auth.Session{}, auth.ErrInvalidToken
	}
	return auth.Session{AccessToken: "tok", RefreshToken: "r2", ExpiresIn: 3600, User: auth.User{ID: testUser}}, nil
}

func (fakeAuth) VerifyAccessToken(_ context.Context, token string) (auth.User, error) {
	switch token {
	case "tok":
		return auth.User{ID: testUser}, nil
	case "down":
		return auth.User{}, fmt.Errorf("dial tcp: connection refused")
	}
	return auth.User{}, auth.ErrInvalidToken
}

// mockGangs embeds the interface so tests only stub what they call.
type mockGangs struct {
	Gangs
	mock.Mock
}

func (m *mockGangs) ListGangs(ctx context.Context, userID string) ([]gang.Gang, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]gang.Gang), args.Error(1)
}

func (m *mockGangs) SellVehicle(ctx context.Context, in gang.SellInput) (gang.Result, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(gang.Result), args.Error(1)
}

func (m *mockGangs) RecordKill(ctx context.Context, in gang.FighterCountInput) (gang.Result, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(gang.Result), args.Error(1)
}

func (m *mockGangs) RepairVehicleDamage(ctx context.Context, in gang.RepairInput) (gang.Result, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(gang.Result), args.Error(1)
}

func (m *mockGangs) GangLog(ctx context.Context, userID, gangID string, page gang.Page) ([]gang.LogEntry, error) {
	args := m.Called(ctx, userID, gangID, page)
	return args.Get(0).([]gang.LogEntry), args.Error(1)
}

func newTestServer(t *testing.T, gangs Gangs) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(config.APIConfig{MetricsEnabled: true}, logger, fakeAuth{}, gangs).Handler())
	t.Cleanup(srv.Close)
	return srv
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func do(t *testing.T, srv *httptest.Server, method, path, body string, header map[string]string) (int, response) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer tok")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})
	code, out := do(t, srv, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, out.Success)
	assert.JSONEq(t, `{"ok":true}`, string(out.Data))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})
	_, _ = do(t, srv, http.MethodGet, "/healthz", "", nil)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `ganger_http_requests_total{code="200",method="GET",route="/healthz"}`)
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})

	code, out := do(t, srv, http.MethodGet, "/v1/gangs", "", map[string]string{"Authorization": ""})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, out.Success)
	assert.Equal(t, "missing bearer token", out.Error)

	code, _ = do(t, srv, http.MethodGet, "/v1/gangs", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out = do(t, srv, http.MethodGet, "/v1/gangs", "", map[string]string{"Authorization": "Bearer down"})
	assert.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "auth provider unavailable", out.Error)
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})

	code, out := do(t, srv, http.MethodPost, "/v1/auth/login", `{"email":" a@b.c ","password":"hunter2"}`, nil)
	require.Equal(t, http.StatusOK, code)
	var session auth.Session
	require.NoError(t, json.Unmarshal(out.Data, &session))
	assert.Equal(t, "a@b.c", session.User.Email)

	code, _ = do(t, srv, http.MethodPost, "/v1/auth/login", `{"email":"a@b.c","password":"x"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/auth/login", `{"email":"a@b.c","nickname":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})

	code, out := do(t, srv, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"r1"}`, nil)
	require.Equal(t, http.StatusOK, code)
	var session auth.Session
	require.NoError(t, json.Unmarshal(out.Data, &session))
	assert.Equal(t, "r2", session.RefreshToken)

	code, _ = do(t, srv, http.MethodPost, "/v1/auth/refresh", `{"refresh_token":"stale"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = do(t, srv, http.MethodPost, "/v1/auth/refresh", `{}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListGangsReturnsEmptyArray(t *testing.T) {
	gangs := &mockGangs{}
	gangs.On("ListGangs", mock.Anything, testUser).Return([]gang.Gang{}, nil)
	srv := newTestServer(t, gangs)

	code, out := do(t, srv, http.MethodGet, "/v1/gangs", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(out.Data))
	gangs.AssertExpectations(t)
}

func TestSellVehicleBindsRouteAndKey(t *testing.T) {
	gangs := &mockGangs{}
	want := gang.SellInput{
		Meta:      gang.Meta{UserID: testUser, IdempotencyKey: "sell-1"},
		ID:        "v-1",
		SellValue: 40,
	}
	result := gang.Result{
		GangID: "g-1",
		Action: "sell_vehicle",
		Delta:  ledger.Delta{Credits: 40, Stash: -50},
		Before: ledger.State{Credits: 60, Rating: 50, Stash: 90},
		After:  ledger.State{Credits: 100, Rating: 50, Stash: 40},
	}
	gangs.On("SellVehicle", mock.Anything, want).Return(result, nil)
	srv := newTestServer(t, gangs)

	code, out := do(t, srv, http.MethodPost, "/v1/vehicles/v-1/sell", `{"sell_value":40}`, map[string]string{"Idempotency-Key": "sell-1"})
	require.Equal(t, http.StatusOK, code)
	var got gang.Result
	require.NoError(t, json.Unmarshal(out.Data, &got))
	assert.Equal(t, result, got)
	gangs.AssertExpectations(t)
}

func TestRouteIDCannotComeFromBody(t *testing.T) {
	srv := newTestServer(t, &mockGangs{})
	code, out := do(t, srv, http.MethodPost, "/v1/vehicles/v-1/sell", `{"id":"v-2","sell_value":40}`, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out.Error, "unknown field")
}

func TestGeneratedIdempotencyKey(t *testing.T) {
	gangs := &mockGangs{}
	gangs.On("RecordKill", mock.Anything, mock.MatchedBy(func(in gang.FighterCountInput) bool {
		return in.FighterID == "f-1" && in.Amount == 0 && len(in.IdempotencyKey) == 36
	})).Return(gang.Result{Action: "record_kill"}, nil)
	srv := newTestServer(t, gangs)

	code, _ := do(t, srv, http.MethodPost, "/v1/fighters/f-1/kills", "", nil)
	assert.Equal(t, http.StatusOK, code)
	gangs.AssertExpectations(t)
}

func TestRepairRouteParams(t *testing.T) {
	gangs := &mockGangs{}
	gangs.On("RepairVehicleDamage", mock.Anything, mock.MatchedBy(func(in gang.RepairInput) bool {
		return in.VehicleID == "v-1" && in.EffectID == "e-9" && in.RepairCost == 15
	})).Return(gang.Result{}, nil)
	srv := newTestServer(t, gangs)

	code, _ := do(t, srv, http.MethodDelete, "/v1/vehicles/v-1/damage/e-9", `{"repair_cost":15}`, nil)
	assert.Equal(t, http.StatusOK, code)
	gangs.AssertExpectations(t)
}

func TestGangLogPaging(t *testing.T) {
	gangs := &mockGangs{}
	gangs.On("GangLog", mock.Anything, testUser, "g-1", gang.Page{Limit: 10, Before: 99}).Return([]gang.LogEntry{{ID: 98}}, nil)
	srv := newTestServer(t, gangs)

	code, _ := do(t, srv, http.MethodGet, "/v1/gangs/g-1/log?limit=10&before=99", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, srv, http.MethodGet, "/v1/gangs/g-1/log?limit=ten", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	gangs.AssertExpectations(t)
}

func TestDomainErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{gang.ErrNotFound, http.StatusNotFound},
		{gang.ErrUnauthorized, http.StatusForbidden},
		{fmt.Errorf("sell: %w", gang.ErrInsufficientCredits), http.StatusUnprocessableEntity},
		{gang.ErrInsufficientXP, http.StatusUnprocessableEntity},
		{gang.ErrInsufficientKills, http.StatusUnprocessableEntity},
		{fmt.Errorf("apply: %w", gang.ErrAmountOutOfRange), http.StatusUnprocessableEntity},
		{gang.ErrDuplicateIdempotency, http.StatusConflict},
		{gang.ErrIdempotencyMismatch, http.StatusConflict},
		{gang.ErrTxConflict, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: name is required", gang.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("pool closed"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			gangs := &mockGangs{}
			gangs.On("SellVehicle", mock.Anything, mock.Anything).Return(gang.Result{}, tc.err)
			srv := newTestServer(t, gangs)

			code, out := do(t, srv, http.MethodPost, "/v1/vehicles/v-1/sell", `{"sell_value":1}`, nil)
			assert.Equal(t, tc.code, code)
			assert.False(t, out.Success)
			if tc.code == http.StatusInternalServerError {
				assert.Equal(t, "internal error", out.Error)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}

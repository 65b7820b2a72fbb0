package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ganger/internal/auth"
	"ganger/internal/config"
	"ganger/internal/gang"
	"ganger/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type contextKey string

const userContextKey contextKey = "user"

type UserContext struct {
	UserID string
	Email  string
	Token  string
}

// Gangs is the roster service the handlers drive.
type Gangs interface {
	CreateGang(ctx context.Context, in gang.CreateGangInput) (gang.Gang, error)
	ListGangs(ctx context.Context, userID string) ([]gang.Gang, error)
	GetGang(ctx context.Context, userID, gangID string) (gang.GangView, error)
	UpdateGangResources(ctx context.Context, in gang.ResourcesInput) (gang.Result, error)
	AdjustCredits(ctx context.Context, in gang.AdjustCreditsInput) (gang.Result, error)
	GangLog(ctx context.Context, userID, gangID string, page gang.Page) ([]gang.LogEntry, error)
	LedgerHistory(ctx context.Context, userID, gangID string, page gang.Page) ([]gang.LedgerEntry, error)
	Reconcile(ctx context.Context, in gang.ReconcileInput) (gang.ReconcileReport, error)

	HireFighter(ctx context.Context, in gang.HireFighterInput) (gang.Result, error)
	SetFighterStatus(ctx context.Context, in gang.FighterStatusInput) (gang.Result, error)
	AddXP(ctx context.Context, in gang.FighterCountInput) (gang.Result, error)
	RecordKill(ctx context.Context, in gang.FighterCountInput) (gang.Result, error)
	AddAdvancement(ctx context.Context, in gang.EffectInput) (gang.Result, error)
	AddPowerBoost(ctx context.Context, in gang.EffectInput) (gang.Result, error)
	AddInjury(ctx context.Context, in gang.EffectInput) (gang.Result, error)
	DeleteEffect(ctx context.Context, in gang.DeleteEffectInput) (gang.Result, error)

	BuyVehicle(ctx context.Context, in gang.BuyVehicleInput) (gang.Result, error)
	AssignVehicle(ctx context.Context, in gang.AssignVehicleInput) (gang.Result, error)
	SellVehicle(ctx context.Context, in gang.SellInput) (gang.Result, error)
	AddVehicleDamage(ctx context.Context, in gang.VehicleDamageInput) (gang.Result, error)
	RepairVehicleDamage(ctx context.Context, in gang.RepairInput) (gang.Result, error)

	BuyEquipment(ctx context.Context, in gang.BuyEquipmentInput) (gang.Result, error)
	MoveEquipment(ctx context.Context, in gang.MoveEquipmentInput) (gang.Result, error)
	SellEquipment(ctx context.Context, in gang.SellInput) (gang.Result, error)
}

type Authenticator interface {
	SignUp(ctx context.Context, email, password, username string) (auth.Session, error)
	Login(ctx context.Context, email, password string) (auth.Session, error)
	Refresh(ctx context.Context, refreshToken string) (auth.Session, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (auth.User, error)
}

type Server struct {
	cfg   config.APIConfig
	log   *slog.Logger
	auth  Authenticator
	gangs Gangs
	mux   *chi.Mux
}

func New(cfg config.APIConfig, logger *slog.Logger, authClient Authenticator, gangs Gangs) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:   cfg,
		log:   logger,
		auth:  authClient,
		gangs: gangs,
		mux:   chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/signup", s.handleSignup)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/gangs", s.handleListGangs)
			r.Post("/gangs", s.handleCreateGang)
			r.Get("/gangs/{id}", s.handleGetGang)
			r.Post("/gangs/{id}/resources", s.handleGangResources)
			r.Post("/gangs/{id}/credits", s.handleAdjustCredits)
			r.Get("/gangs/{id}/log", s.handleGangLog)
			r.Get("/gangs/{id}/ledger", s.handleLedgerHistory)
			r.Post("/gangs/{id}/reconcile", s.handleReconcile)
			r.Post("/gangs/{id}/fighters", s.handleHireFighter)
			r.Post("/gangs/{id}/vehicles", s.handleBuyVehicle)
			r.Post("/gangs/{id}/equipment", s.handleBuyEquipment)

			r.Post("/fighters/{id}/status", s.handleFighterStatus)
			r.Post("/fighters/{id}/xp", s.handleFighterCount(s.gangs.AddXP))
			r.Post("/fighters/{id}/kills", s.handleFighterCount(s.gangs.RecordKill))
			r.Post("/fighters/{id}/advancements", s.handleFighterEffect(s.gangs.AddAdvancement))
			r.Post("/fighters/{id}/power-boosts", s.handleFighterEffect(s.gangs.AddPowerBoost))
			r.Post("/fighters/{id}/injuries", s.handleFighterEffect(s.gangs.AddInjury))
			r.Delete("/effects/{id}", s.handleDeleteEffect)

			r.Post("/vehicles/{id}/assign", s.handleAssignVehicle)
			r.Post("/vehicles/{id}/sell", s.handleSellVehicle)
			r.Post("/vehicles/{id}/damage", s.handleVehicleDamage)
			r.Delete("/vehicles/{id}/damage/{effect_id}", s.handleRepairVehicle)

			r.Post("/equipment/{id}/move", s.handleMoveEquipment)
			r.Post("/equipment/{id}/sell", s.handleSellEquipment)
		})
	})
}

// instrument counts requests by chi route pattern once routing has finished.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(code)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		user, err := s.auth.VerifyAccessToken(r.Context(), token)
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		if err != nil {
			s.log.Error("verify access token", "err", err, "request_id", middleware.GetReqID(r.Context()))
			writeError(w, http.StatusBadGateway, "auth provider unavailable")
			return
		}
		ctx := context.WithValue(r.Context(), userContextKey, UserContext{
			UserID: user.ID,
			Email:  user.Email,
			Token:  token,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (UserContext, error) {
	v := ctx.Value(userContextKey)
	user, ok := v.(UserContext)
	if !ok || user.UserID == "" {
		return UserContext{}, errors.New("missing auth context")
	}
	return user, nil
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.SignUp(r.Context(), strings.TrimSpace(in.Email), in.Password, strings.TrimSpace(in.Username))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, err := s.auth.Login(r.Context(), strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	session, err := s.auth.Refresh(r.Context(), strings.TrimSpace(in.RefreshToken))
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "session expired, log in again")
		return
	case err != nil:
		s.log.Error("token refresh failed", "err", err)
		writeError(w, http.StatusBadGateway, "auth provider unavailable")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleListGangs(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.gangs.ListGangs(r.Context(), user.UserID)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleCreateGang(w http.ResponseWriter, r *http.Request) {
	var in gang.CreateGangInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	out, err := s.gangs.CreateGang(r.Context(), in)
	s.respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleGetGang(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	out, err := s.gangs.GetGang(r.Context(), user.UserID, chi.URLParam(r, "id"))
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleGangResources(w http.ResponseWriter, r *http.Request) {
	var in gang.ResourcesInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.UpdateGangResources(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleAdjustCredits(w http.ResponseWriter, r *http.Request) {
	var in gang.AdjustCreditsInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.AdjustCredits(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleGangLog(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.gangs.GangLog(r.Context(), user.UserID, chi.URLParam(r, "id"), page)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleLedgerHistory(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	page, err := pageFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := s.gangs.LedgerHistory(r.Context(), user.UserID, chi.URLParam(r, "id"), page)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var in gang.ReconcileInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.Reconcile(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleHireFighter(w http.ResponseWriter, r *http.Request) {
	var in gang.HireFighterInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.HireFighter(r.Context(), in)
	s.respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleFighterStatus(w http.ResponseWriter, r *http.Request) {
	var in gang.FighterStatusInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.FighterID = chi.URLParam(r, "id")
	out, err := s.gangs.SetFighterStatus(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleFighterCount(action func(context.Context, gang.FighterCountInput) (gang.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in gang.FighterCountInput
		if !bind(w, r, &in, &in.Meta) {
			return
		}
		in.FighterID = chi.URLParam(r, "id")
		out, err := action(r.Context(), in)
		s.respond(w, r, http.StatusOK, out, err)
	}
}

func (s *Server) handleFighterEffect(action func(context.Context, gang.EffectInput) (gang.Result, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in gang.EffectInput
		if !bind(w, r, &in, &in.Meta) {
			return
		}
		in.FighterID = chi.URLParam(r, "id")
		out, err := action(r.Context(), in)
		s.respond(w, r, http.StatusCreated, out, err)
	}
}

func (s *Server) handleDeleteEffect(w http.ResponseWriter, r *http.Request) {
	var in gang.DeleteEffectInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.EffectID = chi.URLParam(r, "id")
	out, err := s.gangs.DeleteEffect(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleBuyVehicle(w http.ResponseWriter, r *http.Request) {
	var in gang.BuyVehicleInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.BuyVehicle(r.Context(), in)
	s.respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleAssignVehicle(w http.ResponseWriter, r *http.Request) {
	var in gang.AssignVehicleInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.VehicleID = chi.URLParam(r, "id")
	out, err := s.gangs.AssignVehicle(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleSellVehicle(w http.ResponseWriter, r *http.Request) {
	var in gang.SellInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.ID = chi.URLParam(r, "id")
	out, err := s.gangs.SellVehicle(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleVehicleDamage(w http.ResponseWriter, r *http.Request) {
	var in gang.VehicleDamageInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.VehicleID = chi.URLParam(r, "id")
	out, err := s.gangs.AddVehicleDamage(r.Context(), in)
	s.respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleRepairVehicle(w http.ResponseWriter, r *http.Request) {
	var in gang.RepairInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.VehicleID = chi.URLParam(r, "id")
	in.EffectID = chi.URLParam(r, "effect_id")
	out, err := s.gangs.RepairVehicleDamage(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleBuyEquipment(w http.ResponseWriter, r *http.Request) {
	var in gang.BuyEquipmentInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.GangID = chi.URLParam(r, "id")
	out, err := s.gangs.BuyEquipment(r.Context(), in)
	s.respond(w, r, http.StatusCreated, out, err)
}

func (s *Server) handleMoveEquipment(w http.ResponseWriter, r *http.Request) {
	var in gang.MoveEquipmentInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.EquipmentID = chi.URLParam(r, "id")
	out, err := s.gangs.MoveEquipment(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

func (s *Server) handleSellEquipment(w http.ResponseWriter, r *http.Request) {
	var in gang.SellInput
	if !bind(w, r, &in, &in.Meta) {
		return
	}
	in.ID = chi.URLParam(r, "id")
	out, err := s.gangs.SellEquipment(r.Context(), in)
	s.respond(w, r, http.StatusOK, out, err)
}

// bind decodes the request body into in and stamps the caller and the
// idempotency key onto meta. It writes the error response itself.
func bind(w http.ResponseWriter, r *http.Request, in any, meta *gang.Meta) bool {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return false
	}
	if err := decodeJSON(r, in); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	meta.UserID = user.UserID
	meta.IdempotencyKey = idempotencyKey(r)
	return true
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, out any, err error) {
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, status, out)
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gang.ErrDuplicateIdempotency), errors.Is(err, gang.ErrIdempotencyMismatch):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, gang.ErrInsufficientCredits), errors.Is(err, gang.ErrInsufficientXP), errors.Is(err, gang.ErrInsufficientKills),
		errors.Is(err, gang.ErrAmountOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, gang.ErrUnauthorized):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, gang.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, gang.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, gang.ErrTxConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		s.log.Error("request failed", "err", err, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pageFromQuery(r *http.Request) (gang.Page, error) {
	var page gang.Page
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, fmt.Errorf("limit must be a non-negative integer")
		}
		page.Limit = n
	}
	if v := strings.TrimSpace(q.Get("before")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return page, fmt.Errorf("before must be a non-negative entry id")
		}
		page.Before = n
	}
	return page, nil
}

// decodeJSON accepts an empty body as an empty object.
func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: payload})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Error: strings.TrimSpace(message)})
}

func idempotencyKey(r *http.Request) string {
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" {
		return key
	}
	return uuid.NewString()
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

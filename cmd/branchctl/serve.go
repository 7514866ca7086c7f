package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/MrEthical07/branchauth"
	"github.com/MrEthical07/branchauth/metrics/export/prometheus"
	"github.com/MrEthical07/branchauth/middleware"
	"github.com/MrEthical07/branchauth/refcache"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const serveCmdName = "serve"

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   serveCmdName,
		Short: "Serve the engine to local tools over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			schedule, _ := cmd.Flags().GetString("refresh-schedule")
			if schedule == "" {
				schedule = a.engine.Config().RefData.Schedule
			}
			return serve(cmd.Context(), a.engine, a.log, addr, schedule)
		},
	}
	cmd.Flags().String("addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().String("refresh-schedule", "", "cron spec for reference data refresh (defaults to refdata.schedule)")
	return cmd
}

func serve(ctx context.Context, engine *branchauth.Engine, log *zap.Logger, addr, schedule string) error {
	scheduler, err := startRefresh(engine, log, schedule)
	if err != nil {
		return err
	}
	if scheduler != nil {
		defer func() { <-scheduler.Stop().Done() }()
	}

	// Restore a session persisted by an earlier run.
	engine.CheckToken(branchauth.WithSource(ctx, "http"))

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(engine, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// startRefresh schedules RefreshReferenceData. It returns nil when no kinds are configured or
// the schedule is empty.
func startRefresh(engine *branchauth.Engine, log *zap.Logger, schedule string) (*cron.Cron, error) {
	if schedule == "" || len(engine.Config().RefData.Kinds) == 0 {
		return nil, nil
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx := branchauth.WithSource(context.Background(), "cron")
		if !engine.State().IsAuthenticated() {
			return
		}
		if err := engine.RefreshReferenceData(ctx); err != nil {
			log.Warn("reference data refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

func newRouter(engine *branchauth.Engine, log *zap.Logger) http.Handler {
	h := &handlers{engine: engine, log: log}

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestContext)

	r.Get("/state", h.state)
	r.Post("/check", h.check)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/unlock", h.unlock)
	r.Method(http.MethodGet, "/metrics", prometheus.NewExporter(engine).Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuthenticated(engine))
		r.Get("/branches", h.branches)
		r.Post("/branch", h.selectBranch)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireBranch(engine))
			r.Post("/actions/{action}", h.action)
			r.Get("/refdata/{kind}", h.refdata)
		})
	})
	return r
}

type handlers struct {
	engine *branchauth.Engine
	log    *zap.Logger
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.engine.State()))
}

func (h *handlers) check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, viewOf(h.engine.CheckToken(r.Context())))
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("email and password are required"))
		return
	}
	st, err := h.engine.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Logout(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (h *handlers) unlock(w http.ResponseWriter, r *http.Request) {
	var body struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("pin is required"))
		return
	}
	st, err := h.engine.UnlockWithPIN(r.Context(), body.PIN)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(st))
}

func (h *handlers) branches(w http.ResponseWriter, r *http.Request) {
	b, err := h.engine.Branches(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *handlers) selectBranch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	if err := h.engine.SelectBranch(r.Context(), body.ID); err != nil {
		h.writeError(w, err)
		return
	}
	h.branches(w, r)
}

func (h *handlers) action(w http.ResponseWriter, r *http.Request) {
	action := chi.URLParam(r, "action")
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" {
		endpoint = action
	}
	// Only paths under the configured remote; a full URL would carry the token elsewhere.
	if u, err := url.Parse(endpoint); err != nil || u.IsAbs() || u.Host != "" {
		writeJSON(w, http.StatusBadRequest, errorBody("endpoint must be a path relative to the remote base url"))
		return
	}

	var extra map[string]any
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&extra); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("body must be a JSON object"))
			return
		}
	}

	data, err := h.engine.Request(r.Context(), endpoint, action, extra)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) refdata(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
	items, err := h.engine.ReferenceData(r.Context(), chi.URLParam(r, "kind"), refresh)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, branchauth.ErrInvalidCredentials),
		errors.Is(err, branchauth.ErrPINAttemptsExhausted),
		errors.Is(err, branchauth.ErrInvalidSession),
		errors.Is(err, branchauth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, branchauth.ErrBranchNotAssigned),
		errors.Is(err, branchauth.ErrPINInvalid):
		return http.StatusForbidden
	case errors.Is(err, branchauth.ErrIdentityUnresolved),
		errors.Is(err, branchauth.ErrPINNotSet):
		return http.StatusConflict
	case errors.Is(err, refcache.ErrInvalidKind):
		return http.StatusBadRequest
	case errors.Is(err, branchauth.ErrRequestFailed):
		return http.StatusBadGateway
	case errors.Is(err, branchauth.ErrStorageUnavailable), errors.Is(err, branchauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

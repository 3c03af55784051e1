package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	apperrors "github.com/kmn/visitor-kiosk/internal/errors"
	"github.com/kmn/visitor-kiosk/internal/service"
)

// PinVerifier exchanges a PIN for an identity.
type PinVerifier interface {
	VerifyPin(ctx context.Context, pin string) (domainauth.Identity, error)
}

// AutoExitRunner runs the facility-day auto-exit once.
type AutoExitRunner interface {
	Run(ctx context.Context) (model.AutoExitOutcome, error)
}

// AuthHandlers provides HTTP handlers for PIN login and the session lifecycle.
type AuthHandlers struct {
	Sessions SessionEngines
	Pins     PinVerifier
	AutoExit AutoExitRunner // optional
	Logger   *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type pinRequest struct {
	Pin string `json:"pin"`
}

type activityRequest struct {
	Signal domainauth.ActivitySignal `json:"signal"`
}

type loginResponse struct {
	Identity  domainauth.Identity     `json:"identity"`
	ExpiresAt time.Time               `json:"expires_at"`
	Session   service.SessionSnapshot `json:"session"`
}

type mountResponse struct {
	Session  service.SessionSnapshot `json:"session"`
	AutoExit *model.AutoExitOutcome  `json:"auto_exit,omitempty"`
}

// Mount restores the context's session and, when signed in, runs the
// daily auto-exit once. A failing auto-exit is logged and not reported.
// POST /auth/mount.
func (h *AuthHandlers) Mount(w http.ResponseWriter, r *http.Request) {
	snap, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		return e.Start(r.Context())
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := mountResponse{Session: snap}
	if snap.State.HasSession() && h.AutoExit != nil {
		outcome, runErr := h.AutoExit.Run(r.Context())
		if runErr != nil {
			h.logger().ErrorContext(r.Context(), "auto-exit on mount failed", "error", runErr)
		} else {
			resp.AutoExit = &outcome
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Pin verifies a PIN and starts a session in the caller's context.
// POST /auth/pin {"pin":"1234"}.
func (h *AuthHandlers) Pin(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	identity, err := h.Pins.VerifyPin(r.Context(), req.Pin)
	if err != nil {
		WriteAppError(w, err)
		return
	}

	snap, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		return e.Login(r.Context(), identity)
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	resp := loginResponse{Identity: identity, Session: snap}
	if snap.ExpiresAt != nil {
		resp.ExpiresAt = *snap.ExpiresAt
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Session returns the current snapshot.
// GET /auth/session.
func (h *AuthHandlers) Session(w http.ResponseWriter, r *http.Request) {
	snap, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		return e.Snapshot(), nil
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Extend renews the session for the role's full duration.
// POST /auth/extend.
func (h *AuthHandlers) Extend(w http.ResponseWriter, r *http.Request) {
	snap, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		return e.Extend(r.Context())
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Activity reports a user-interaction signal for idle renewal.
// POST /auth/activity {"signal":"pointermove"}.
func (h *AuthHandlers) Activity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	var renewed bool
	snap, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		ok, aerr := e.Activity(r.Context(), req.Signal)
		renewed = ok
		return e.Snapshot(), aerr
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"renewed": renewed, "session": snap})
}

// Logout ends the session. Local state is cleared even if the store fails.
// POST /auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	_, err := h.withEngine(r, func(e *service.SessionEngine) (service.SessionSnapshot, error) {
		return service.SessionSnapshot{}, e.Logout(r.Context())
	})
	if err != nil {
		h.logger().WarnContext(r.Context(), "logout cleanup incomplete", "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// withEngine resolves the caller's engine and runs fn, retrying once when the
// engine was disposed by an expiry between lookup and use.
func (h *AuthHandlers) withEngine(
	r *http.Request,
	fn func(*service.SessionEngine) (service.SessionSnapshot, error),
) (service.SessionSnapshot, error) {
	kc, ok := GetKioskContext(r.Context())
	if !ok {
		return service.SessionSnapshot{}, errMissingContext
	}

	var (
		snap service.SessionSnapshot
		err  error
	)
	for range 2 {
		var e *service.SessionEngine
		e, err = h.Sessions.Engine(r.Context(), kc.ID, kc.Console)
		if err != nil {
			return service.SessionSnapshot{}, err
		}
		snap, err = fn(e)
		if !errors.Is(err, service.ErrEngineDisposed) {
			return snap, err
		}
	}
	return snap, err
}

var errMissingContext = errors.New("browser context missing")

func (h *AuthHandlers) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNoSession):
		WriteError(w, ErrorParams{Code: http.StatusUnauthorized, ErrCode: "no_session", Err: err})
	case errors.Is(err, errMissingContext):
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "missing_context", Err: err})
	case errors.Is(err, service.ErrManagerClosed):
		WriteError(w, ErrorParams{Code: http.StatusServiceUnavailable, ErrCode: "shutting_down", Err: err})
	case apperrors.GetCode(err) != "":
		WriteAppError(w, err)
	default:
		h.logger().ErrorContext(r.Context(), "session operation failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_unavailable",
			Err:     errors.New("session store unavailable"),
		})
	}
}

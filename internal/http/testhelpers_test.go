package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kmn/visitor-kiosk/internal/clock"
	domainauth "github.com/kmn/visitor-kiosk/internal/domain/auth"
	"github.com/kmn/visitor-kiosk/internal/domain/model"
	mocks "github.com/kmn/visitor-kiosk/internal/mocks/auth"
	"github.com/kmn/visitor-kiosk/internal/service"
)

var testEpoch = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

type sessionFixture struct {
	clock   *clock.Fake
	store   *mocks.MemorySlotStore
	manager *service.SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	fc := clock.NewFake(testEpoch)
	store := mocks.NewMemorySlotStore()
	store.Now = fc.Now
	m, err := service.NewSessionManager(service.SessionManagerOptions{Store: store, Clock: fc})
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return &sessionFixture{clock: fc, store: store, manager: m}
}

// login signs contextID in as id directly through its engine.
func (f *sessionFixture) login(t *testing.T, contextID string, id domainauth.Identity) {
	t.Helper()
	e, err := f.manager.Engine(context.Background(), contextID, false)
	require.NoError(t, err)
	_, err = e.Login(context.Background(), id)
	require.NoError(t, err)
}

func userIdentity() domainauth.Identity {
	return domainauth.Identity{ID: "7", Name: "Front Desk", Role: domainauth.RoleUser}
}

func adminIdentity() domainauth.Identity {
	return domainauth.Identity{ID: "1", Name: "Admin", Role: domainauth.RoleAdmin}
}

// pinVerifierFunc adapts a function to PinVerifier.
type pinVerifierFunc func(ctx context.Context, pin string) (domainauth.Identity, error)

func (f pinVerifierFunc) VerifyPin(ctx context.Context, pin string) (domainauth.Identity, error) {
	return f(ctx, pin)
}

// fakeAutoExit is a func-field AutoExitRunner.
type fakeAutoExit struct {
	RunFunc func(ctx context.Context) (model.AutoExitOutcome, error)
	calls   int
}

func (f *fakeAutoExit) Run(ctx context.Context) (model.AutoExitOutcome, error) {
	f.calls++
	if f.RunFunc == nil {
		return model.AutoExitOutcome{}, nil
	}
	return f.RunFunc(ctx)
}

// withContext attaches a kiosk browser context the way KioskContextMiddleware would.
func withContext(r *http.Request, id string, console bool) *http.Request {
	return r.WithContext(SetKioskContext(r.Context(), KioskContext{ID: id, Console: console}))
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

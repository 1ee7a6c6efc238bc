package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkconsent/internal/challenge"
	"zkconsent/internal/session/models"
	"zkconsent/internal/session/service"
	sessionstore "zkconsent/internal/session/store"
	usermodels "zkconsent/internal/user/models"
	userstore "zkconsent/internal/user/store"
	dErrors "zkconsent/pkg/domain-errors"
)

type stubVerifier struct {
	resp *models.VerifyResponse
	err  error
}

func (s *stubVerifier) Verify(_ context.Context, _, _, _ string) (*models.VerifyResponse, error) {
	return s.resp, s.err
}

type stubResign struct {
	resp *models.ResignResponse
	err  error
}

func (s *stubResign) Run(_ context.Context, sessionID string) (*models.ResignResponse, error) {
	if s.resp != nil {
		out := *s.resp
		out.SessionID = sessionID
		return &out, s.err
	}
	return nil, s.err
}

type fixture struct {
	router   chi.Router
	verifier *stubVerifier
	resign   *stubResign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Now()

	sessions := sessionstore.NewMemory()
	users := userstore.NewMemory()
	challenges := challenge.NewService("test-signing-key", 5*time.Minute)

	user, err := usermodels.NewUser("u-1", "0xwallet", "Ada", "1990-01-01", "Lisbon", "bafyuser", now)
	require.NoError(t, err)
	require.NoError(t, users.Save(context.Background(), user))

	logger := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	svc := service.New(sessions, users, challenges, logger)

	verifier := &stubVerifier{resp: &models.VerifyResponse{Verified: true, ProofStatus: models.ProofValid}}
	resign := &stubResign{resp: &models.ResignResponse{Stage: "complete", ProofStatus: models.ProofValid}}

	r := chi.NewRouter()
	New(svc, verifier, resign, logger).Register(r)
	return &fixture{router: r, verifier: verifier, resign: resign}
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) createSession(t *testing.T) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/sessions", models.CreateSessionRequest{
		Provider:        models.ProviderInfo{ProviderID: "prov-1", Name: "Acme"},
		UserRef:         "bafyuser",
		RequestedFields: []string{"name", "dob"},
		ProofTypes:      []string{"ageVerification"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.CreateSessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.Challenge)
	return resp.SessionID
}

func TestCreateSessionEndpoint(t *testing.T) {
	f := newFixture(t)
	f.createSession(t)
}

func TestCreateSessionRejectsUnknownField(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/sessions", models.CreateSessionRequest{
		Provider:        models.ProviderInfo{ProviderID: "prov-1", Name: "Acme"},
		UserRef:         "bafyuser",
		RequestedFields: []string{"ssn"},
		ProofTypes:      []string{"ageVerification"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(dErrors.CodeValidation))
}

func TestApproveFlow(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/approve",
		models.ApproveRequest{ApprovedFields: []string{"dob"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var view models.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.StatusOngoing, view.Status)
	assert.Positive(t, view.RemainingMs)

	// second approval conflicts
	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/approve",
		models.ApproveRequest{ApprovedFields: []string{"dob"}})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRejectAndRevokeEndpoints(t *testing.T) {
	f := newFixture(t)

	id := f.createSession(t)
	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/reject", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	id = f.createSession(t)
	_ = f.do(t, http.MethodPost, "/sessions/"+id+"/approve",
		models.ApproveRequest{ApprovedFields: []string{"dob"}})
	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/revoke", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view models.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, models.StatusRevoked, view.Status)
	assert.True(t, view.NeedsResign)
}

func TestGetAndListEndpoints(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodGet, "/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []models.SessionView `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list.Sessions, 1)

	rec = f.do(t, http.MethodGet, "/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/verify", models.VerifyRequest{
		SessionID: id, ProofType: "ageVerification", CID: "bafyproof",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.VerifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Verified)

	rec = f.do(t, http.MethodPost, "/verify", models.VerifyRequest{ProofType: "ageVerification"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.verifier.resp = nil
	f.verifier.err = dErrors.New(dErrors.CodeStateConflict, "verification already committed")
	rec = f.do(t, http.MethodPost, "/verify", models.VerifyRequest{
		SessionID: id, ProofType: "ageVerification",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestResignEndpoint(t *testing.T) {
	f := newFixture(t)
	id := f.createSession(t)

	rec := f.do(t, http.MethodPost, "/sessions/"+id+"/resign", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ResignResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "complete", resp.Stage)
	assert.Equal(t, id, resp.SessionID)

	f.resign.resp = nil
	f.resign.err = dErrors.New(dErrors.CodeStateConflict, "only closed sessions are re-signed")
	rec = f.do(t, http.MethodPost, "/sessions/"+id+"/resign", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

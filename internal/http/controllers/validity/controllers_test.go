package validity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/dtva/internal/cluster"
	"github.com/dropDatabas3/dtva/internal/codec"
	"github.com/dropDatabas3/dtva/internal/coordinator"
	dto "github.com/dropDatabas3/dtva/internal/http/dto/validity"
	domain "github.com/dropDatabas3/dtva/internal/validity"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

type fakeCluster struct {
	mu    sync.Mutex
	state *domain.State
	now   func() time.Time
	index uint64
	err   error
}

func (f *fakeCluster) Submit(_ context.Context, txs ...domain.Transaction) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.state, _ = domain.Apply(f.state, domain.Batch{Submitter: 0, Transactions: txs}, f.now())
	f.index++
	return f.index, nil
}

func (f *fakeCluster) IsLeader() bool   { return true }
func (f *fakeCluster) LeaderID() string { return "node-a" }

func (f *fakeCluster) Current() *domain.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeCluster) AppliedIndex() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index
}

func (f *fakeCluster) LastConsensusTime() time.Time { return f.now() }

func (f *fakeCluster) seed(submitter int, txs ...domain.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state, _ = domain.Apply(f.state, domain.Batch{Submitter: submitter, Transactions: txs}, f.now())
}

func (f *fakeCluster) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type env struct {
	h   http.Handler
	fc  *fakeCluster
	clk *clock
}

func newEnv(t *testing.T, grace time.Duration) *env {
	t.Helper()
	clk := &clock{now: t0}
	fc := &fakeCluster{
		state: domain.CreateInitialState([]domain.PeerInfo{
			{Nickname: "alpha", Identifier: []byte("node-a")},
			{Nickname: "beta", Identifier: []byte("node-b")},
		}, domain.ConstitutionConfig{}),
		now: clk.Now,
	}
	coord, err := coordinator.New(coordinator.Options{
		Submitter:          fc,
		States:             fc,
		SelfIdentifier:     []byte("node-a"),
		ConsensusGraceSpan: grace,
		Now:                clk.Now,
	})
	require.NoError(t, err)

	c := NewControllers(coord, fc)
	r := chi.NewRouter()
	r.Get("/v1/issuers", c.Issuers.List)
	r.Post("/v1/issuers", c.Issuers.Register)
	r.Post("/v1/validity", c.Sessions.Create)
	r.Get("/v1/validity", c.Sessions.Find)
	r.Delete("/v1/validity", c.Sessions.InvalidateByIssuer)
	r.Get("/v1/validity/{sid}", c.Sessions.Get)
	r.Post("/v1/validity/{sid}", c.Sessions.Touch)
	r.Delete("/v1/validity/{sid}", c.Sessions.Invalidate)
	r.Get("/v1/state/digest", c.State.Digest)
	return &env{h: r, fc: fc, clk: clk}
}

func (e *env) do(method, target, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.h.ServeHTTP(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code
}

func sessionView(t *testing.T, rec *httptest.ResponseRecorder) dto.SessionView {
	t.Helper()
	var v dto.SessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// create registra una clave de idp con hard expiry en 1h y timeout de 10m.
func (e *env) create(t *testing.T) dto.SessionView {
	t.Helper()
	body := fmt.Sprintf(`{"iss":"idp","sexp":%d,"interactivity_timeout":600}`, t0.Add(time.Hour).Unix())
	rec := e.do(http.MethodPost, "/v1/validity", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return sessionView(t, rec)
}

func TestIssuers_RegisterAndList(t *testing.T) {
	e := newEnv(t, 0)

	rec := e.do(http.MethodPost, "/v1/issuers", `{"iss":"idp"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var out dto.IssuerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, dto.IssuerResponse{Issuer: "idp", Owner: "alpha", Status: "owned"}, out)

	e.fc.seed(1, domain.RegisterIssuerTx("partner"))
	rec = e.do(http.MethodPost, "/v1/issuers", `{"iss":"partner"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ISSUER_OWNED_BY_OTHER", errorCode(t, rec))

	rec = e.do(http.MethodPost, "/v1/issuers", `{"iss":"  "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELDS", errorCode(t, rec))

	rec = e.do(http.MethodGet, "/v1/issuers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var names []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &names))
	assert.Equal(t, []string{"idp", "partner"}, names)
	assert.Equal(t, t0.Add(time.Minute).Format(http.TimeFormat), rec.Header().Get("Expires"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "no-store")
}

func TestIssuers_NotLeader(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.fail(fmt.Errorf("%w: leadership lost", cluster.ErrNotLeader))

	rec := e.do(http.MethodPost, "/v1/issuers", `{"iss":"idp"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "NOT_LEADER", errorCode(t, rec))
}

func TestSessions_CreateAndGet(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))

	body := fmt.Sprintf(`{"iss":"idp","sexp":%d,"interactivity_timeout":600}`, t0.Add(time.Hour).Unix())
	rec := e.do(http.MethodPost, "/v1/validity", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v := sessionView(t, rec)
	assert.Equal(t, "active", v.State)
	assert.Equal(t, "idp", v.Issuer)
	assert.Equal(t, t0.Add(time.Hour).Unix(), v.HardExpiryAt)
	require.NotNil(t, v.InteractivityTimeout)
	assert.Equal(t, int64(600), *v.InteractivityTimeout)
	assert.Equal(t, t0.Add(10*time.Minute).Unix(), v.ScheduledTransitionAt)
	assert.Equal(t, "/v1/validity/"+v.Sid, rec.Header().Get("Location"))
	assert.Equal(t, t0.Add(time.Hour).Format(http.TimeFormat), rec.Header().Get("Expires"))
	assert.Equal(t, t0.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))

	rec = e.do(http.MethodGet, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, v, sessionView(t, rec))

	rec = e.do(http.MethodGet, "/v1/validity/"+v.Sid, "", "Accept", "application/cbor")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/cbor", rec.Header().Get("Content-Type"))
	var fromCBOR dto.SessionView
	require.NoError(t, codec.Unmarshal(rec.Body.Bytes(), &fromCBOR))
	assert.Equal(t, v, fromCBOR)
}

func TestSessions_CreateValidation(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	future := t0.Add(time.Hour).Unix()

	cases := []struct {
		name string
		body string
		code string
	}{
		{"missing sexp", `{"iss":"idp"}`, "MISSING_FIELDS"},
		{"missing iss", fmt.Sprintf(`{"sexp":%d}`, future), "MISSING_FIELDS"},
		{"unknown issuer", fmt.Sprintf(`{"iss":"nope","sexp":%d}`, future), "UNKNOWN_ISSUER"},
		{"past expiry", fmt.Sprintf(`{"iss":"idp","sexp":%d}`, t0.Unix()), "HARD_EXPIRY_OUT_OF_POLICY"},
		{"zero timeout", fmt.Sprintf(`{"iss":"idp","sexp":%d,"interactivity_timeout":0}`, future), "INVALID_INTERACTIVITY_TIMEOUT"},
		{"bad json", `{"iss":`, "INVALID_JSON"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/v1/validity", tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestSessions_GetUnknownAndMalformed(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))

	sid := domain.NewSessionIdentifier(domain.NewValidityKey(t0.Add(time.Hour), 0, domain.NoSpan, 42))
	rec := e.do(http.MethodGet, "/v1/validity/"+sid.String(), "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SID_NOT_FOUND", errorCode(t, rec))

	rec = e.do(http.MethodGet, "/v1/validity/not-a-sid!", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_SID", errorCode(t, rec))
}

func TestSessions_Find(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	v := e.create(t)

	rec := e.do(http.MethodGet, "/v1/validity?sid="+v.Sid+"&iss=idp", "")
	require.Equal(t, http.StatusPermanentRedirect, rec.Code)
	assert.Equal(t, "/v1/validity/"+v.Sid, rec.Header().Get("Location"))

	rec = e.do(http.MethodGet, "/v1/validity?sid="+v.Sid+"&iss=other", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ISSUER_MISMATCH", errorCode(t, rec))

	rec = e.do(http.MethodGet, "/v1/validity?sid="+v.Sid, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MISSING_FIELDS", errorCode(t, rec))
}

func TestSessions_TouchLifecycle(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	v := e.create(t)

	e.clk.Advance(5 * time.Minute)
	rec := e.do(http.MethodPost, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	touched := sessionView(t, rec)
	assert.Equal(t, "active", touched.State)
	assert.Equal(t, t0.Add(5*time.Minute).Unix(), touched.LastModifiedAt)
	assert.Equal(t, t0.Add(15*time.Minute).Unix(), touched.ScheduledTransitionAt)

	e.clk.Advance(11 * time.Minute)
	rec = e.do(http.MethodPost, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusGone, rec.Code)
	assert.Equal(t, "SID_EXPIRED", errorCode(t, rec))

	// expirada: invalidar no cambia nada y devuelve 200
	rec = e.do(http.MethodDelete, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "expired", sessionView(t, rec).State)
}

func TestSessions_Invalidate(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	v := e.create(t)

	e.clk.Advance(time.Minute)
	rec := e.do(http.MethodDelete, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	e.clk.Advance(time.Second)
	rec = e.do(http.MethodGet, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := sessionView(t, rec)
	assert.Equal(t, "invalidated", got.State)
	require.NotNil(t, got.InvalidatedAt)
	assert.Equal(t, t0.Add(time.Minute).Unix(), *got.InvalidatedAt)

	rec = e.do(http.MethodPost, "/v1/validity/"+v.Sid, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "SID_INVALIDATED", errorCode(t, rec))
}

func TestSessions_InvalidateByIssuer(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	v := e.create(t)

	rec := e.do(http.MethodDelete, "/v1/validity?sid="+v.Sid+"&iss=other", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ISSUER_MISMATCH", errorCode(t, rec))

	rec = e.do(http.MethodDelete, "/v1/validity?sid="+v.Sid+"&iss=idp", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	unknown := domain.NewSessionIdentifier(domain.NewValidityKey(t0.Add(time.Hour), 7, domain.NoSpan, 1))
	rec = e.do(http.MethodDelete, "/v1/validity?sid="+unknown.String()+"&iss=idp", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UNKNOWN_ISSUER", errorCode(t, rec))
}

func TestSessions_GraceWhenConsensusTimesOut(t *testing.T) {
	e := newEnv(t, 30*time.Second)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	e.fc.fail(cluster.ErrApplyTimeout)

	body := fmt.Sprintf(`{"iss":"idp","sexp":%d}`, t0.Add(time.Hour).Unix())
	rec := e.do(http.MethodPost, "/v1/validity", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var pending dto.PendingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.NotEmpty(t, pending.Sid)
	assert.Equal(t, "/v1/validity/"+pending.Sid, pending.Location)

	rec = e.do(http.MethodGet, "/v1/validity/"+pending.Sid, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", sessionView(t, rec).State)

	rec = e.do(http.MethodPost, "/v1/validity/"+pending.Sid, "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	e.clk.Advance(31 * time.Second)
	rec = e.do(http.MethodGet, "/v1/validity/"+pending.Sid, "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestState_Digest(t *testing.T) {
	e := newEnv(t, 0)
	e.fc.seed(0, domain.RegisterIssuerTx("idp"))
	e.create(t)

	rec := e.do(http.MethodGet, "/v1/state/digest", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out dto.DigestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out.Digest, 64)
	assert.Equal(t, 1, out.Keys)
	assert.Equal(t, 1, out.Issuers)
	assert.Equal(t, uint64(1), out.AppliedIndex)

	etag := rec.Header().Get("ETag")
	assert.Equal(t, `"`+out.Digest+`"`, etag)

	rec = e.do(http.MethodGet, "/v1/state/digest", "", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

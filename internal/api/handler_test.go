package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/notification"
	"laundromat-backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeNotifier struct{ texts []string }

func (f *fakeNotifier) PushAll(_ context.Context, text string) (notification.Result, error) {
	f.texts = append(f.texts, text)
	return notification.Result{Sent: 2, Failed: 1}, nil
}

type fakeReplier struct{ tokens []string }

func (f *fakeReplier) Reply(_ context.Context, token, _ string) error {
	f.tokens = append(f.tokens, token)
	return nil
}

type testServer struct {
	router   *gin.Engine
	store    store.Store
	notifier *fakeNotifier
	replier  *fakeReplier
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	return newTestServerWith(t, secret, RouterConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000})
}

func newTestServerWith(t *testing.T, secret string, cfg RouterConfig) *testServer {
	t.Helper()
	s, err := store.NewMemoryStore([]store.Seed{
		{ID: "W-01", Kind: model.KindWashing, Capacity: "10kg"},
		{ID: "W-02", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 300},
		{ID: "D-01", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusOutOfService},
	})
	require.NoError(t, err)

	ts := &testServer{store: s, notifier: &fakeNotifier{}, replier: &fakeReplier{}}
	h := NewHandler(Deps{
		Store:      s,
		Notifier:   ts.notifier,
		Line:       ts.replier,
		LineSecret: secret,
		ReplyText:  "registered",
		WebPush:    &webpush.Options{VAPIDPublicKey: "pub-key"},
		Log:        zaptest.NewLogger(t),
	})
	cfg.Log = zaptest.NewLogger(t)
	ts.router = NewRouter(h, cfg)
	return ts
}

func (ts *testServer) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Balance int64  `json:"balance"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var r apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r), w.Body.String())
	return r
}

func TestMachines(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/machines", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var machines []model.Machine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &machines))
	require.Len(t, machines, 3)

	w = ts.do(http.MethodGet, "/api/machines/w-02", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m model.Machine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, model.StatusInUse, m.Status)
	assert.Equal(t, 300, m.Remaining())

	w = ts.do(http.MethodGet, "/api/machines/W-99", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, model.CodeNotFound, decode(t, w).Code)
}

func TestStartFlow(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/topup", gin.H{"amount": 100}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, apiResponse{OK: true, Balance: 100}, decode(t, w))

	w = ts.do(http.MethodPost, "/api/start", gin.H{"id": "W-01", "durationSeconds": 1500, "price": 60}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, apiResponse{OK: true, Balance: 40}, decode(t, w))

	w = ts.do(http.MethodPost, "/api/start", gin.H{"id": "W-01", "durationSeconds": 1500, "price": 60}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, model.CodeAlreadyInUse, decode(t, w).Code)

	w = ts.do(http.MethodGet, "/api/balance", nil, nil)
	assert.JSONEq(t, `{"balance":40}`, w.Body.String(), "balance debited once")

	w = ts.do(http.MethodGet, "/api/history", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []model.HistoryEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "W-01", history[0].MachineID)
	assert.Equal(t, int64(60), history[0].Price)

	w = ts.do(http.MethodPost, "/api/stop", gin.H{"id": "W-01"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// The machine list is cached but flushed by the stop above.
	w = ts.do(http.MethodGet, "/api/machines/W-01", nil, nil)
	var m model.Machine
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, model.StatusAvailable, m.Status)
}

func TestStartErrors(t *testing.T) {
	testCases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown machine", gin.H{"id": "W-99", "durationSeconds": 60, "price": 0}, http.StatusNotFound, model.CodeNotFound},
		{"in use", gin.H{"id": "W-02", "durationSeconds": 60, "price": 0}, http.StatusConflict, model.CodeAlreadyInUse},
		{"out of service", gin.H{"id": "D-01", "durationSeconds": 60, "price": 0}, http.StatusConflict, model.CodeOutOfService},
		{"insufficient funds", gin.H{"id": "W-01", "durationSeconds": 60, "price": 10}, http.StatusPaymentRequired, model.CodeInsufficientFunds},
		{"missing duration", gin.H{"id": "W-01", "price": 0}, http.StatusBadRequest, model.CodeInvalidInput},
		{"missing id", gin.H{"durationSeconds": 60}, http.StatusBadRequest, model.CodeInvalidInput},
		{"malformed body", []byte(`{"id":`), http.StatusBadRequest, model.CodeInvalidInput},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			w := ts.do(http.MethodPost, "/api/start", tc.body, nil)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			r := decode(t, w)
			assert.False(t, r.OK)
			assert.Equal(t, tc.code, r.Code)
			assert.NotEmpty(t, r.Message)
		})
	}
}

func TestStartAcceptsDurationSecAlias(t *testing.T) {
	ts := newTestServer(t, "")
	w := ts.do(http.MethodPost, "/api/start", gin.H{"id": "W-01", "durationSec": 90, "price": 0}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	m, err := ts.store.Machines().Get(context.Background(), "W-01")
	require.NoError(t, err)
	assert.Equal(t, 90, m.Remaining())
}

func TestSetAvailableAndTopUpErrors(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/setAvailable", gin.H{"id": "W-02"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodPost, "/api/setAvailable", gin.H{"id": "W-99"}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Out-of-service machines are returned to service.
	w = ts.do(http.MethodPost, "/api/setAvailable", gin.H{"id": "D-01"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(http.MethodPost, "/api/stop", gin.H{"id": "D-01"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	d, err := ts.store.Machines().Get(context.Background(), "D-01")
	require.NoError(t, err)
	assert.Equal(t, model.StatusAvailable, d.Status)

	w = ts.do(http.MethodPost, "/api/topup", gin.H{"amount": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeInvalidAmount, decode(t, w).Code)

	w = ts.do(http.MethodPost, "/api/topup", []byte(`{"amount":"lots"}`), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, model.CodeInvalidAmount, decode(t, w).Code)

	w = ts.do(http.MethodGet, "/api/history?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestLineWebhook(t *testing.T) {
	body := []byte(`{"destination":"x","events":[
		{"type":"message","replyToken":"rt-1","source":{"type":"user","userId":"U1"}},
		{"type":"follow","replyToken":"rt-2","source":{"type":"group","userId":"U2","groupId":"C1"}},
		{"type":"message","replyToken":"rt-3","source":{"type":"user","userId":"U1"}}
	]}`)

	t.Run("bad signature is rejected before registration", func(t *testing.T) {
		ts := newTestServer(t, "s3cret")
		w := ts.do(http.MethodPost, "/api/webhook", body, http.Header{"X-Line-Signature": {signBody("wrong", body)}})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, model.CodeInvalidSignature, decode(t, w).Code)

		recipients, err := ts.store.Recipients().List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, recipients)
		assert.Empty(t, ts.replier.tokens)
	})

	t.Run("valid signature registers senders once", func(t *testing.T) {
		ts := newTestServer(t, "s3cret")
		w := ts.do(http.MethodPost, "/api/webhook", body, http.Header{"X-Line-Signature": {signBody("s3cret", body)}})
		require.Equal(t, http.StatusOK, w.Code)

		recipients, err := ts.store.Recipients().List(context.Background())
		require.NoError(t, err)
		require.Len(t, recipients, 2)
		labels := []string{recipients[0].Label, recipients[1].Label}
		assert.ElementsMatch(t, []string{"user:U1", "group:C1"}, labels)
		assert.Equal(t, []string{"rt-1", "rt-3"}, ts.replier.tokens, "only message events are answered")

		w = ts.do(http.MethodGet, "/api/recipients", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var listed []model.Recipient
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
		assert.Len(t, listed, 2)
	})

	t.Run("no secret skips verification", func(t *testing.T) {
		ts := newTestServer(t, "")
		w := ts.do(http.MethodPost, "/api/webhook", body, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		ts := newTestServer(t, "")
		w := ts.do(http.MethodPost, "/api/webhook", []byte(`{"events":`), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestLineWebhookIgnoresRateLimit(t *testing.T) {
	ts := newTestServerWith(t, "", RouterConfig{RateLimitPerSec: 0.001, RateLimitBurst: 2})
	body := []byte(`{"events":[{"type":"follow","source":{"type":"user","userId":"U1"}}]}`)

	for i := 0; i < 10; i++ {
		w := ts.do(http.MethodPost, "/api/webhook", body, nil)
		require.Equal(t, http.StatusOK, w.Code, "delivery %d", i)
	}

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, ts.do(http.MethodGet, "/api/balance", nil, nil).Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestPushAll(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodPost, "/api/notify/push-all", gin.H{"message": "closing at 22:00"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"ok":true,"sent":2,"failed":1,"removed":0}`, w.Body.String())
	assert.Equal(t, []string{"closing at 22:00"}, ts.notifier.texts)

	w = ts.do(http.MethodPost, "/api/notify/push-all", gin.H{"message": ""}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptions(t *testing.T) {
	ts := newTestServer(t, "")
	sub := gin.H{"endpoint": "https://push.example/abc", "p256dh": "key", "auth": "secret"}

	w := ts.do(http.MethodPut, "/api/subscriptions", sub, nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = ts.do(http.MethodPut, "/api/subscriptions", sub, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	recipients, err := ts.store.Recipients().List(context.Background())
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	assert.Equal(t, model.ChannelWebPush, recipients[0].Channel)
	assert.Equal(t, "key", recipients[0].P256DH)

	w = ts.do(http.MethodPut, "/api/subscriptions", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"ok":false,"code":"invalid_input","message":"invalid request: invalid input"}`, w.Body.String())

	w = ts.do(http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": "https://push.example/abc"}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	recipients, err = ts.store.Recipients().List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recipients)

	w = ts.do(http.MethodGet, "/api/vapid_public_key", nil, nil)
	assert.JSONEq(t, `{"public_key":"pub-key"}`, w.Body.String())
}

func TestQuote(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(http.MethodGet, "/api/quote?machine=W-02&program=hot", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"kind":"washing","capacityKg":15,"program":"hot","price":70,"durationSeconds":1500}`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/quote?kind=dryer&capacity=15kg&extra=2", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"kind":"dryer","capacityKg":15,"extraUnits":2,"price":60,"durationSeconds":2220}`, w.Body.String())

	w = ts.do(http.MethodGet, "/api/quote?kind=dryer&capacity=15kg&program=hot", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, "")
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/healthz", nil, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/metrics", nil, nil).Code)
}

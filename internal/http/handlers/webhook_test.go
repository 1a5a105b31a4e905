package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dailygrain/server/internal/digest"
	"github.com/dailygrain/server/internal/habit"
	"github.com/dailygrain/server/internal/interpreter"
	"github.com/dailygrain/server/internal/repo"
)

func newTestWebhookHandler(t *testing.T) *WebhookHandler {
	t.Helper()
	store := repo.NewMemoryStore()
	svc := habit.NewService(store, store)
	now := func() time.Time { return time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC) }
	composer := digest.NewComposer(store, store, svc).WithClock(now)
	interp := interpreter.New(store, store, store, store, svc, composer, zap.NewNop()).WithClock(now)
	return NewWebhookHandler(interp, zap.NewNop())
}

func postSMS(t *testing.T, h *WebhookHandler, from, body string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{}
	if from != "" {
		form.Set("From", from)
	}
	if body != "" {
		form.Set("Body", body)
	}
	req := httptest.NewRequest(http.MethodPost, "/webhook/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.HandleSMS(rec, req)
	return rec
}

func TestHandleSMSRejectsMissingParameters(t *testing.T) {
	h := newTestWebhookHandler(t)

	rec := postSMS(t, h, "", "HELP")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postSMS(t, h, "+15551234567", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSMSRepliesWithTwiML(t *testing.T) {
	h := newTestWebhookHandler(t)

	rec := postSMS(t, h, "+15551234567", "HELP")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "<?xml")
	assert.Contains(t, body, "<Response>")
	assert.Contains(t, body, "ADD [name] - Add a habit")
}

func TestHandleSMSCarriesConversationAcrossPosts(t *testing.T) {
	h := newTestWebhookHandler(t)
	from := "+15551234567"

	rec := postSMS(t, h, from, "ADD Morning run")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Reply with a number (1-3)")

	rec = postSMS(t, h, from, "1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "&#34;Morning run&#34;")

	rec = postSMS(t, h, from, "LIST")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Morning run (Daily)")
}

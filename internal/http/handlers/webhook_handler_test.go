package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/provider"
	"github.com/ignatzorin/errand-backend/internal/service"
)

type mockEventHandler struct {
	mock.Mock
}

func (m *mockEventHandler) HandleProviderEvent(ctx context.Context, event service.ProviderEvent) (string, error) {
	args := m.Called(ctx, event)
	return args.String(0), args.Error(1)
}

const chargeSuccess = `{"event":"charge.success","data":{"reference":"ERD-1","amount":150000,"authorization":{"bank":"Test Bank","last4":"4081"},"paid_at":"2024-05-01T10:00:00Z"}}`

func postWebhook(h *WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	r := newTestRouter(uuid.Nil, "")
	r.POST("/payments/webhook", h.Handle)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Signature(t *testing.T) {
	events := new(mockEventHandler)
	h := NewWebhookHandler(events, "whsec")

	events.On("HandleProviderEvent", mock.Anything, mock.MatchedBy(func(e service.ProviderEvent) bool {
		return e.Event == "charge.success" && e.Data.Reference == "ERD-1" && e.Data.Amount == 150000 && e.Data.Authorization.Last4 == "4081"
	})).Return(service.EventProcessed, nil)

	w := postWebhook(h, chargeSuccess, provider.Sign("whsec", []byte(chargeSuccess)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), service.EventProcessed)

	w = postWebhook(h, chargeSuccess, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(h, chargeSuccess, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	events.AssertNumberOfCalls(t, "HandleProviderEvent", 1)
}

func TestWebhookHandler_WithoutSecret(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		result string
		err    error
		status int
	}{
		{"processed", chargeSuccess, service.EventProcessed, nil, http.StatusOK},
		{"replay", chargeSuccess, service.EventDuplicate, nil, http.StatusOK},
		{"ignored", `{"event":"subscription.create","data":{"reference":"X"}}`, service.EventIgnored, nil, http.StatusOK},
		{"unknown reference", chargeSuccess, "", apperror.ErrPaymentNotFound, http.StatusNotFound},
		{"malformed", `{"event":`, "", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := new(mockEventHandler)
			events.On("HandleProviderEvent", mock.Anything, mock.Anything).Return(tt.result, tt.err)

			w := postWebhook(NewWebhookHandler(events, ""), tt.body, "")
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

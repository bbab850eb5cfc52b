package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/errand-backend/internal/http/handlers/common"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
	"github.com/ignatzorin/errand-backend/internal/provider"
	"github.com/ignatzorin/errand-backend/internal/service"
)

// SignatureHeader заголовок с HMAC-SHA512 подписью тела webhook.
const SignatureHeader = "X-Paystack-Signature"

const maxWebhookBody = 1 << 20

// ProviderEventHandler принимает события платёжного провайдера.
type ProviderEventHandler interface {
	HandleProviderEvent(ctx context.Context, event service.ProviderEvent) (string, error)
}

type WebhookHandler struct {
	payments ProviderEventHandler
	secret   string
}

// NewWebhookHandler создаёт обработчик webhook. Пустой secret отключает проверку подписи.
func NewWebhookHandler(payments ProviderEventHandler, secret string) *WebhookHandler {
	return &WebhookHandler{payments: payments, secret: secret}
}

// Handle POST /payments/webhook
func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeBadRequest, "не удалось прочитать тело запроса"))
		return
	}

	if h.secret != "" && !provider.VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		common.Fail(c, apperror.New(apperror.ErrCodeUnauthorized, "неверная подпись webhook"))
		return
	}

	var event service.ProviderEvent
	if err := json.Unmarshal(body, &event); err != nil {
		common.Fail(c, apperror.Wrap(err, apperror.ErrCodeBadRequest, "некорректное событие"))
		return
	}

	result, err := h.payments.HandleProviderEvent(c.Request.Context(), event)
	if err != nil {
		common.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": result})
}

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/errand-backend/internal/logger"
	"github.com/ignatzorin/errand-backend/internal/pkg/apperror"
)

const internalErrorMessage = "внутренняя ошибка сервера"

// ErrorResponse тело ответа с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		status, body := Render(c.Errors.Last().Err)

		entry := logger.Log.WithFields(logrus.Fields{
			"error":  c.Errors.Last().Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"status": status,
		})
		if status >= http.StatusInternalServerError {
			entry.Error("http: ошибка обработки запроса")
		} else {
			entry.Debug("http: запрос отклонён")
		}

		c.JSON(status, body)
	}
}

// Render переводит ошибку в HTTP статус и тело ответа.
func Render(err error) (int, ErrorResponse) {
	appErr, ok := apperror.As(err)
	if !ok {
		return http.StatusInternalServerError, ErrorResponse{
			Error: internalErrorMessage,
			Code:  string(apperror.ErrCodeInternal),
		}
	}

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	message := appErr.Message
	if status == http.StatusInternalServerError {
		message = internalErrorMessage
	}
	return status, ErrorResponse{Error: message, Code: string(appErr.Code)}
}

// abortWithError прерывает цепочку и сразу пишет ответ с ошибкой.
func abortWithError(c *gin.Context, err error) {
	status, body := Render(err)
	c.AbortWithStatusJSON(status, body)
}

package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingShopDomain = &AppError{http.StatusBadRequest, "MISSING_SHOP_DOMAIN", "X-Shopify-Shop-Domain header required"}
	ErrUnknownShopDomain = &AppError{http.StatusNotFound, "UNKNOWN_SHOP_DOMAIN", "No active configuration for shop domain"}
	ErrInvalidSignature  = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature verification failed"}
	ErrMissingWebhookID  = &AppError{http.StatusBadRequest, "MISSING_WEBHOOK_ID", "X-Shopify-Webhook-Id header required"}
	ErrTopicNotAllowed   = &AppError{http.StatusBadRequest, "TOPIC_NOT_ALLOWED", "Topic is not handled by this endpoint"}
	ErrInvalidRequest    = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrInternalError     = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}
)

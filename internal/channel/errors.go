package channel

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shortsbot/internal/domain"
)

// classifyError maps Bot API and network failures to domain error kinds.
func classifyError(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.Error{Kind: domain.KindTimeout, Op: op, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &domain.Error{Kind: domain.KindUnknown, Op: op, Err: err}
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return &domain.Error{Kind: apiErrorKind(apiErr.Code, apiErr.Message), Op: op, Description: apiErr.Message, Err: err}
	}

	// Oversized uploads can be refused by a proxy in front of the Bot API
	// with a non-JSON 413 body.
	if strings.Contains(err.Error(), "Request Entity Too Large") {
		return &domain.Error{Kind: domain.KindTooLarge, Op: op, Description: "Request Entity Too Large", Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return &domain.Error{Kind: domain.KindConnectivity, Op: op, Err: err}
	}

	return &domain.Error{Kind: domain.KindUnknown, Op: op, Err: err}
}

func apiErrorKind(code int, message string) domain.ErrorKind {
	switch {
	case code == 413 || strings.Contains(message, "Request Entity Too Large"):
		return domain.KindTooLarge
	case code == 403 && strings.Contains(strings.ToLower(message), "blocked"):
		return domain.KindBlocked
	default:
		return domain.KindRejected
	}
}

package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/gamemart/ledger/internal/domain"
)

// Notifier dispatches user-facing notifications. Implementations are
// best-effort: they log failures and never return them. Services call
// Notifier only after the owning transaction commits.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification)
	NotifyRole(ctx context.Context, role domain.Role, n domain.Notification)
}

// NopNotifier drops every notification.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, domain.Notification) {}
func (NopNotifier) NotifyRole(context.Context, domain.Role, domain.Notification) {}

// internalErr passes AppErrors through and wraps anything else as internal.
func internalErr(msg string, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return domain.ErrInternal(msg, err)
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomCode returns n characters drawn uniformly from codeAlphabet.
func randomCode(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	// 252 is the largest multiple of 36 below 256; higher bytes are rejected.
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

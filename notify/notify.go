// Package notify delivers out-of-band action links and SMS codes to the
// developer in place of real email and SMS delivery.
package notify

import (
	"context"
	"errors"
)

// Kind identifies what a Message carries.
type Kind string

const (
	KindOobCode          Kind = "oobCode"
	KindVerificationCode Kind = "verificationCode"
	// KindOperation reports a completed engine operation. It carries no code.
	KindOperation Kind = "operation"
)

// Message is one simulated delivery.
type Message struct {
	Kind        Kind   `json:"kind"`
	ProjectID   string `json:"projectId"`
	TenantID    string `json:"tenantId,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	RequestType string `json:"requestType,omitempty"`
	Code        string `json:"code"`
	Link        string `json:"link,omitempty"`

	Operation  string `json:"operation,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Text renders the message the way a developer would read it in a console.
func (m Message) Text() string {
	switch m.Kind {
	case KindOperation:
		if m.Error != "" {
			return m.Operation + " failed with " + m.Error
		}
		return m.Operation + " succeeded"
	case KindVerificationCode:
		return "To verify the phone number " + m.PhoneNumber + ", use the code " + m.Code + "."
	default:
		return "To " + action(m.RequestType) + " " + m.Email + ", follow this link: " + m.Link
	}
}

func action(requestType string) string {
	switch requestType {
	case "EMAIL_SIGNIN":
		return "sign in as"
	case "PASSWORD_RESET":
		return "reset your password for"
	case "VERIFY_EMAIL":
		return "verify the email address"
	case "RECOVER_EMAIL":
		return "recover the email address"
	}
	return "act on"
}

// Notifier receives simulated deliveries.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NoOp discards messages.
type NoOp struct{}

func (NoOp) Notify(context.Context, Message) error { return nil }

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

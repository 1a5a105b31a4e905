// Package sms sends outbound text messages.
package sms

import "context"

// Transport delivers one text message to one phone number. It returns the
// provider's message reference on success.
type Transport interface {
	Send(ctx context.Context, to, body string) (string, error)
}

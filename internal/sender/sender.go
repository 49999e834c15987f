// Package sender delivers OTP codes and free-text notifications over the
// channel-specific transports. Senders attempt delivery once; they do not
// retry or queue, and transport errors propagate to the OTP engine.
package sender

import (
	"context"
	"fmt"
)

// Channel names used across the service.
const (
	ChannelEmail    = "email"
	ChannelPhone    = "phone"
	ChannelWhatsApp = "whatsapp"
)

// EmailSender delivers a code to an email address.
type EmailSender interface {
	SendOTP(ctx context.Context, address, code string) error
}

// TextSender delivers codes over SMS and free-text messages over WhatsApp.
type TextSender interface {
	SendOTP(ctx context.Context, phone, code string) error
	SendMessage(ctx context.Context, phone, body string) error
}

// Registry dispatches an OTP to the sender matching the channel.
type Registry struct {
	email EmailSender
	text  TextSender
}

func NewRegistry(email EmailSender, text TextSender) *Registry {
	return &Registry{email: email, text: text}
}

// SendOTP routes the code to the channel's transport.
func (r *Registry) SendOTP(ctx context.Context, channel, identifier, code string) error {
	switch channel {
	case ChannelEmail:
		return r.email.SendOTP(ctx, identifier, code)
	case ChannelPhone:
		return r.text.SendOTP(ctx, identifier, code)
	default:
		return fmt.Errorf("no sender for channel %q", channel)
	}
}

// SendMessage delivers a free-text WhatsApp message.
func (r *Registry) SendMessage(ctx context.Context, phone, body string) error {
	return r.text.SendMessage(ctx, phone, body)
}

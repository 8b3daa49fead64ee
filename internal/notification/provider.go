package notification

import (
	"context"
	"fmt"
	"strings"
)

// Failure kinds recorded as FAILED:<kind>. Provider-specific kinds are built with the
// helpers below.
const (
	KindMissingConfig = "MISSING_CONFIG"
	KindTimeout       = "TIMEOUT"
)

// UnknownMessageID is recorded when the provider accepted a message without returning an id.
const UnknownMessageID = "SM_UNKNOWN"

// Result is the outcome of one send attempt. Send never returns an error: every failure is
// described by ErrorKind and Details.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Details   string `json:"details,omitempty"`
}

// Provider delivers a text message to an E.164 phone number.
type Provider interface {
	Send(ctx context.Context, to, body string) Result
}

func sent(messageID string) Result {
	if messageID == "" {
		messageID = UnknownMessageID
	}
	return Result{Success: true, MessageID: messageID}
}

func failed(kind, details string) Result {
	return Result{Success: false, ErrorKind: kind, Details: details}
}

func providerKind(code int) string { return fmt.Sprintf("TWILIO_%d", code) }

func httpKind(status int) string { return fmt.Sprintf("HTTP_%d", status) }

// unknownKind names an unexpected error by its Go type, e.g. UNKNOWN_OpError.
func unknownKind(err error) string {
	name := fmt.Sprintf("%T", err)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return "UNKNOWN_" + strings.TrimPrefix(name, "*")
}

// Package notify pushes fired alerts to external services.
package notify

import (
	"context"
	"time"
)

// Notification is one fired alert on its way to the providers.
type Notification struct {
	Rule      string            `json:"rule"`
	Severity  string            `json:"severity"` // "info", "warning", "critical"
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Subject   string            `json:"subject"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Provider sends notifications through a specific channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

package transport

import (
	"context"
	"errors"
)

// Delivery outcomes the pipeline treats as tenant-local and non-fatal.
var (
	ErrNotFound         = errors.New("destination not found")
	ErrPermissionDenied = errors.New("destination permission denied")
)

// Field is one labeled value inside a notification.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Notification is a rendered, platform-agnostic payload. The destination
// client decides how to express color/thumbnail/fields on its platform.
type Notification struct {
	Title     string
	Body      string
	Color     int
	Thumbnail string
	Image     string
	Fields    []Field
	Footer    string
}

// Client delivers notifications to a destination. Implementations map
// platform-specific failures onto ErrNotFound / ErrPermissionDenied so the
// dispatcher can classify them without knowing the platform.
type Client interface {
	Send(ctx context.Context, destinationID int64, n Notification) error
}

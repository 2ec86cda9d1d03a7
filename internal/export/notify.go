package export

import (
	"context"
	"log/slog"
)

// Level classifies a Notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is user-facing feedback about an export.
type Notice struct {
	Level    Level  `json:"level"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	ReportID string `json:"report_id,omitempty"`
}

// Notifier delivers notices to whoever is watching the export.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Notifiers fans a notice out to several notifiers.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, n Notice) {
	for _, x := range ns {
		if x != nil {
			x.Notify(ctx, n)
		}
	}
}

// LogNotifier writes notices to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Title, "message", n.Message, "reportID", n.ReportID)
}

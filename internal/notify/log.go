package notify

import "github.com/charmbracelet/log"

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a notifier backed by logger
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Send logs the notification at a level matching its type
func (l *LogNotifier) Send(n Notification) error {
	kv := []interface{}{"title", n.Title}
	if n.RunID != "" {
		kv = append(kv, "run", n.RunID)
	}
	if n.Location != "" {
		kv = append(kv, "location", n.Location)
	}
	switch n.Type {
	case NotifyError:
		l.logger.Error(n.Message, kv...)
	case NotifyWarning:
		l.logger.Warn(n.Message, kv...)
	default:
		l.logger.Info(n.Message, kv...)
	}
	return nil
}

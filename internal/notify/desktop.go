package notify

import (
	"os/exec"
	"runtime"
	"strconv"
)

const desktopAppName = "qce-orch"

// DesktopNotifier shows run outcomes through the host's notification daemon
type DesktopNotifier struct {
	enabled bool
}

// NewDesktopNotifier creates a new desktop notifier
func NewDesktopNotifier(enabled bool) *DesktopNotifier {
	return &DesktopNotifier{enabled: enabled}
}

// Send shows the notification; unsupported platforms are a no-op
func (d *DesktopNotifier) Send(n Notification) error {
	if !d.enabled {
		return nil
	}

	switch runtime.GOOS {
	case "darwin":
		return exec.Command("osascript", "-e", macScript(n)).Run()
	case "linux":
		return exec.Command("notify-send", linuxArgs(n)...).Run()
	default:
		return nil
	}
}

// macScript builds the AppleScript; the run reference becomes the subtitle
func macScript(n Notification) string {
	script := "display notification " + strconv.Quote(desktopBody(n)) + " with title " + strconv.Quote(n.Title)
	if n.RunID != "" {
		script += " subtitle " + strconv.Quote(n.RunID)
	}
	return script
}

// linuxArgs builds the notify-send arguments. Failed runs stay on screen.
func linuxArgs(n Notification) []string {
	urgency := "normal"
	if n.Type == NotifyError {
		urgency = "critical"
	}
	return []string{
		"--app-name", desktopAppName,
		"--icon", IconForType(n.Type),
		"--urgency", urgency,
		n.Title, desktopBody(n),
	}
}

func desktopBody(n Notification) string {
	if n.Location == "" {
		return n.Message
	}
	return n.Message + "\n" + n.Location
}

// IconForType returns a freedesktop icon name for the notification type
func IconForType(t NotificationType) string {
	switch t {
	case NotifySuccess:
		return "dialog-positive"
	case NotifyWarning:
		return "dialog-warning"
	case NotifyError:
		return "dialog-error"
	default:
		return "dialog-information"
	}
}

package notify

import (
	"os/exec"
	"runtime"

	"github.com/billmal071/kobodl/internal/config"
)

// Notification types
const (
	TypeSuccess = "success"
	TypeError   = "error"
)

// Send sends a desktop notification if enabled in config
func Send(title, message, notifyType string) {
	if !config.Get().Downloads.Notifications {
		return
	}

	// Send notification in background
	go sendNotification(title, message, notifyType)
}

// DownloadComplete sends a download complete notification
func DownloadComplete(title string) {
	Send("Book Downloaded", title, TypeSuccess)
}

// DownloadFailed sends a download failed notification
func DownloadFailed(title, reason string) {
	msg := title
	if reason != "" {
		msg += ": " + reason
	}
	Send("Download Failed", msg, TypeError)
}

func sendNotification(title, message, notifyType string) {
	switch runtime.GOOS {
	case "linux":
		sendLinuxNotification(title, message, notifyType)
	case "darwin":
		sendMacNotification(title, message)
	}
}

func sendLinuxNotification(title, message, notifyType string) {
	icon := "dialog-information"
	switch notifyType {
	case TypeSuccess:
		icon = "dialog-ok"
	case TypeError:
		icon = "dialog-error"
	}

	cmd := exec.Command("notify-send", "-i", icon, "-a", "kobodl", title, message)
	cmd.Run()
}

func sendMacNotification(title, message string) {
	script := `display notification "` + escapeAppleScript(message) + `" with title "` + escapeAppleScript(title) + `"`
	cmd := exec.Command("osascript", "-e", script)
	cmd.Run()
}

func escapeAppleScript(s string) string {
	// Escape backslashes and double quotes for AppleScript
	result := ""
	for _, c := range s {
		if c == '\\' || c == '"' {
			result += "\\"
		}
		result += string(c)
	}
	return result
}

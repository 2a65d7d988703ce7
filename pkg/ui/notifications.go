package ui

import (
	"fmt"
	"os/exec"
	"runtime"

	"artsync/pkg/config"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	return exec.Command("notify-send", title, message).Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	return exec.Command("osascript", "-e", script).Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("artsync").Show($toast)
	`, title, message)

	return exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script).Run()
}

// Notifier prints run-level events and mirrors them to the desktop when
// enabled in the notifications config.
type Notifier struct {
	sender NotificationSender
	cfg    config.NotificationConfig
}

// NewNotifier picks the sender for the current platform
func NewNotifier(cfg config.NotificationConfig) *Notifier {
	var sender NotificationSender
	switch runtime.GOOS {
	case "linux":
		sender = &LinuxNotificationSender{}
	case "darwin":
		sender = &MacOSNotificationSender{}
	case "windows":
		sender = &WindowsNotificationSender{}
	}
	return &Notifier{sender: sender, cfg: cfg}
}

// NewNotifierWithSender is used by tests
func NewNotifierWithSender(cfg config.NotificationConfig, sender NotificationSender) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

func (n *Notifier) send(title, message string) {
	if n.sender == nil || !n.cfg.Enabled {
		return
	}
	// desktop delivery is best effort
	_ = n.sender.Send(title, message)
}

// SendError reports a failed or partially failed run
func (n *Notifier) SendError(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Red(title), Red(message))
	if n.cfg.OnError {
		n.send("artsync: "+title, message)
	}
}

// SendSuccess reports a clean run
func (n *Notifier) SendSuccess(title, message string) {
	fmt.Fprintf(Out, "\n%s: %s\n", Green(title), Green(message))
	if n.cfg.OnComplete {
		n.send("artsync: "+title, message)
	}
}

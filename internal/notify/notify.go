// Package notify shows desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"
)

const appName = "voicecap"

// Notifier sends desktop notifications. A disabled Notifier only logs.
type Notifier struct {
	Enabled bool
	Logger  *logrus.Logger

	notify func(title, message, icon string) error
	alert  func(title, message, icon string) error
}

// New returns a notifier backed by beeep.
func New(enabled bool, logger *logrus.Logger) *Notifier {
	return &Notifier{Enabled: enabled, Logger: logger, notify: beeep.Notify, alert: beeep.Alert}
}

// Info shows a transient notice.
func (n *Notifier) Info(message string) {
	n.send(n.notify, message)
}

// Alert shows a notification with sound, used for failures that need action.
func (n *Notifier) Alert(message string) {
	n.send(n.alert, message)
}

func (n *Notifier) send(fn func(string, string, string) error, message string) {
	if !n.Enabled || fn == nil {
		return
	}
	if err := fn(appName, message, ""); err != nil && n.Logger != nil {
		n.Logger.Debugf("notify: %v", err)
	}
}

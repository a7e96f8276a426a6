// Package clipboard puts text on the system clipboard and sends the paste
// keystroke to the focused window.
package clipboard

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
	"github.com/sirupsen/logrus"
)

const (
	pasteRetries    = 3
	pasteRetryDelay = 150 * time.Millisecond
	// Linux needs time for the virtual keyboard device to appear.
	linuxSettle = 2 * time.Second
)

// ErrUnsupported is returned when no clipboard utility is available.
var ErrUnsupported = errors.New("clipboard: not supported on this system")

// Supported reports whether a clipboard backend was found.
func Supported() bool {
	return !clipboard.Unsupported
}

// Output copies text and pastes it.
type Output struct {
	// PasteDelay is the pause between writing the clipboard and pasting.
	PasteDelay time.Duration
	// AutoPaste sends the paste keystroke after Copy.
	AutoPaste bool
	Logger    *logrus.Logger

	mu sync.Mutex
	kb *keybd_event.KeyBonding
}

// Copy writes text to the clipboard.
func (o *Output) Copy(text string) error {
	if clipboard.Unsupported {
		return ErrUnsupported
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

// Paste sends Ctrl+V (Cmd+V on macOS), retrying a few times.
func (o *Output) Paste() error {
	if !o.AutoPaste {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.PasteDelay > 0 {
		time.Sleep(o.PasteDelay)
	}
	kb, err := o.keyboard()
	if err != nil {
		return err
	}
	var last error
	for attempt := 1; attempt <= pasteRetries; attempt++ {
		if last = kb.Launching(); last == nil {
			return nil
		}
		if o.Logger != nil {
			o.Logger.Warnf("paste attempt %d/%d: %v", attempt, pasteRetries, last)
		}
		time.Sleep(pasteRetryDelay)
	}
	return fmt.Errorf("paste: %w", last)
}

func (o *Output) keyboard() (*keybd_event.KeyBonding, error) {
	if o.kb != nil {
		return o.kb, nil
	}
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return nil, fmt.Errorf("keyboard: %w", err)
	}
	if runtime.GOOS == "linux" {
		time.Sleep(linuxSettle)
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	o.kb = &kb
	return o.kb, nil
}

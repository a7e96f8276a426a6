package clipboard

import (
	"errors"
	"testing"
)

func TestPasteDisabledIsNoop(t *testing.T) {
	o := &Output{}
	if err := o.Paste(); err != nil {
		t.Fatalf("paste: %v", err)
	}
	if o.kb != nil {
		t.Fatalf("keyboard should not be opened when auto-paste is off")
	}
}

func TestCopyReportsUnsupported(t *testing.T) {
	if Supported() {
		t.Skip("clipboard utility present")
	}
	if err := (&Output{}).Copy("x"); !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

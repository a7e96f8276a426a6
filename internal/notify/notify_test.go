package notify

import (
	"errors"
	"testing"

	"voicecap/internal/logging"
)

type sent struct{ title, msg string }

func recorder(dst *[]sent, err error) func(string, string, string) error {
	return func(title, msg, _ string) error {
		*dst = append(*dst, sent{title, msg})
		return err
	}
}

func TestRoutesInfoAndAlert(t *testing.T) {
	var infos, alerts []sent
	n := New(true, logging.NewTestLogger())
	n.notify = recorder(&infos, nil)
	n.alert = recorder(&alerts, errors.New("no dbus"))

	n.Info("copied")
	n.Alert("failed")
	if len(infos) != 1 || infos[0] != (sent{"voicecap", "copied"}) {
		t.Fatalf("infos = %+v", infos)
	}
	if len(alerts) != 1 || alerts[0].msg != "failed" {
		t.Fatalf("alerts = %+v", alerts)
	}
}

func TestDisabledSendsNothing(t *testing.T) {
	var infos []sent
	n := New(false, nil)
	n.notify = recorder(&infos, nil)
	n.Info("x")
	if len(infos) != 0 {
		t.Fatalf("disabled notifier sent %+v", infos)
	}
}

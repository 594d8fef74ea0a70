package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestSetLogger(t *testing.T) {
	l := &logger{level: LevelDebug, out: &bytes.Buffer{}}
	SetLogger(l)
}

func TestSetLevel(t *testing.T) {
	SetLevel(LevelAll)
	func() {
		defer func() {
			err := recover()
			if err != nil {
				t.Errorf("recover returned err: %s", err)
			}
		}()
		SetLevel(1000)
	}()
}

func Test_logger_SetLevel(t *testing.T) {
	l := &logger{level: LevelDebug, out: &bytes.Buffer{}}
	l.SetLevel(LevelAll)
}

func Test_logger_Levels(t *testing.T) {
	out := &bytes.Buffer{}
	l := &logger{level: LevelDebug, out: out}
	l.Debug("logger debug test")
	l.Info("logger info test")
	l.Warn("logger warn test")
	l.Error("logger error test")
	for _, tag := range []string{"[DBG]", "[INF]", "[WRN]", "[ERR]"} {
		if !strings.Contains(out.String(), tag) {
			t.Fatalf("missing %q in output: %q", tag, out.String())
		}
	}
}

func Test_logger_LevelFilters(t *testing.T) {
	out := &bytes.Buffer{}
	l := &logger{level: LevelError, out: out}
	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("dropped")
	if out.Len() != 0 {
		t.Fatalf("low-priority logs not filtered: %q", out.String())
	}
	l.Error("kept")
	if !strings.Contains(out.String(), "kept") {
		t.Fatalf("error log missing: %q", out.String())
	}
}

func Test_Debug(t *testing.T) {
	Debug("log.Debug")
}

func Test_Info(t *testing.T) {
	Info("log.Info")
}

func Test_Warn(t *testing.T) {
	Warn("log.Warn")
}

func Test_Error(t *testing.T) {
	Error("log.Error")
}

package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Options{Output: &buf})
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want Info", log.GetLevel())
	}
}

func TestNewParsesExplicitLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Options{Level: "debug", Output: &buf})
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want Debug", log.GetLevel())
	}
}

func TestNewFallsBackOnUnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Options{Level: "not-a-level", Output: &buf})
	if log.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want Info fallback", log.GetLevel())
	}
}

func TestCrashTailRetainsLoggedOutput(t *testing.T) {
	var buf bytes.Buffer
	log, tail := New(Options{Output: &buf})
	log.Info("hello world")

	if !strings.Contains(tail.String(), "hello world") {
		t.Errorf("tail = %q, want it to contain the logged line", tail.String())
	}
}

func TestWrapFatalAppendsTail(t *testing.T) {
	var buf bytes.Buffer
	log, tail := New(Options{Output: &buf})
	log.Error("something broke")

	err := tail.WrapFatal(errString("boom"))
	if !strings.Contains(err.Error(), "something broke") {
		t.Errorf("wrapped error = %q, want it to contain the log tail", err.Error())
	}
}

func TestWrapFatalPassesThroughWhenTailEmpty(t *testing.T) {
	var ct *CrashTail
	err := ct.WrapFatal(errString("boom"))
	if err.Error() != "boom" {
		t.Errorf("err = %q, want unchanged", err.Error())
	}
}

type errString string

func (e errString) Error() string { return string(e) }

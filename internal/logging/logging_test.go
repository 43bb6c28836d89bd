package logging

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

func TestLoggerCarriesContextFields(t *testing.T) {
	ctx := WithAppliance(WithTxnID(context.Background(), "txn-1"), "A1")
	entry := Logger(ctx)
	if entry.Data["txnid"] != "txn-1" {
		t.Fatalf("expected txnid field, got %v", entry.Data)
	}
	if entry.Data["appliance"] != "A1" {
		t.Fatalf("expected appliance field, got %v", entry.Data)
	}
	if entry.Data["instance"] != InstanceID() {
		t.Fatalf("expected instance field, got %v", entry.Data)
	}
}

func TestLoggerWithoutContext(t *testing.T) {
	entry := Logger(nil)
	if _, ok := entry.Data["txnid"]; ok {
		t.Fatalf("unexpected txnid field")
	}
}

func TestConfigureRejectsBadLevel(t *testing.T) {
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetLevel(prev)

	v := viper.New()
	SetDefaults(v)
	v.Set("logging.level", "loud")
	if err := Configure(v); err == nil {
		t.Fatalf("expected error for bad level")
	}
}

func TestConfigureSetsLevel(t *testing.T) {
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	defer logrus.SetLevel(prev)

	v := viper.New()
	SetDefaults(v)
	v.Set("logging.level", "warn")
	if err := Configure(v); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logrus.GetLevel() != logrus.WarnLevel {
		t.Fatalf("expected warn level, got %s", logrus.GetLevel())
	}
}

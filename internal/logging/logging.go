// Package logging wires logrus for the bridge and carries per-request fields
// through context.
package logging

import (
	"context"
	stdlog "log"
	"os"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type ctxKey int

const (
	txnIDKey ctxKey = iota
	applianceKey
)

var (
	mu         sync.RWMutex
	base       *logrus.Entry
	logFile    *os.File
	instanceID = uuid.New().String()
)

func init() {
	base = newEntry()
}

func newEntry() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": instanceID,
	})
}

// InstanceID identifies this bridge process in logs and MQTT client ids.
func InstanceID() string {
	return instanceID
}

// WithTxnID returns a context whose logger carries the transaction id.
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, txnIDKey, txnID)
}

// WithAppliance returns a context whose logger carries the appliance id.
func WithAppliance(ctx context.Context, applianceID string) context.Context {
	return context.WithValue(ctx, applianceKey, applianceID)
}

// Logger returns the process logger decorated with fields found in ctx.
func Logger(ctx context.Context) *logrus.Entry {
	mu.RLock()
	entry := base
	mu.RUnlock()
	if ctx == nil {
		return entry
	}
	fields := logrus.Fields{}
	if txnID, ok := ctx.Value(txnIDKey).(string); ok {
		fields["txnid"] = txnID
	}
	if id, ok := ctx.Value(applianceKey).(string); ok {
		fields["appliance"] = id
	}
	if len(fields) == 0 {
		return entry
	}
	return entry.WithFields(fields)
}

// SetDefaults registers the logging keys on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.location", "stderr")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.level", "info")
}

// Configure sets the log level, output location and format.
func Configure(v *viper.Viper) error {
	mu.Lock()
	defer mu.Unlock()

	switch loc := v.GetString("logging.location"); loc {
	case "stdout":
		logrus.SetOutput(os.Stdout)
	case "stderr", "":
		logrus.SetOutput(os.Stderr)
	default:
		file, err := os.OpenFile(loc, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrapf(err, "open log file %s", loc)
		}
		base.Debugf("switching log output to %s", loc)
		logrus.SetOutput(file)
		if logFile != nil {
			logFile.Close()
		}
		logFile = file
	}

	// --debug on the command line wins over the configured level
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		level := v.GetString("logging.level")
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return errors.Errorf("bad log level: [%s]", level)
		}
		logrus.SetLevel(parsed)
	}

	switch format := v.GetString("logging.format"); format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("bad log format: [%s]", format)
	}

	base = newEntry()
	stdlog.SetOutput(base.WriterLevel(logrus.DebugLevel))
	return nil
}

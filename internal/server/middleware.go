package server

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joshp123/electrolux-bridge/internal/logging"
)

type statusWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (w *statusWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

// LoggingMiddleware tags each request with a transaction id and writes an
// audit line when it completes.
func LoggingMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			txnID := uuid.New().String()
			start := time.Now()

			rw.Header().Set("X-Txn-ID", txnID)
			r = r.WithContext(logging.WithTxnID(r.Context(), txnID))

			sw := &statusWriter{ResponseWriter: rw, statusCode: http.StatusOK}
			next.ServeHTTP(sw, r)

			logging.Logger(r.Context()).WithFields(logrus.Fields{
				"entrytype": "audit",
				"status":    sw.statusCode,
				"method":    r.Method,
				"remote":    r.RemoteAddr,
				"duration":  time.Since(start),
				"path":      r.URL.String(),
				"size":      sw.size,
			}).Info(http.StatusText(sw.statusCode))
		})
	}
}

// RecoveryMiddleware turns a handler panic into a 500.
func RecoveryMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logging.Logger(r.Context()).Errorf("caught panic: %v : %s", err, debug.Stack())
					http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(rw, r)
		})
	}
}

// unaryLogger is the gRPC counterpart of LoggingMiddleware and RecoveryMiddleware.
func unaryLogger(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	ctx = logging.WithTxnID(ctx, uuid.New().String())
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logging.Logger(ctx).Errorf("caught panic: %v : %s", p, debug.Stack())
			err = status.Error(codes.Internal, "internal error")
		}
		logging.Logger(ctx).WithFields(logrus.Fields{
			"entrytype": "audit",
			"method":    info.FullMethod,
			"code":      status.Code(err).String(),
			"duration":  time.Since(start),
		}).Info("grpc call")
	}()
	return handler(ctx, req)
}

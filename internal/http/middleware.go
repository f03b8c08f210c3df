package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_cart/jewel-cart/internal/logger"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DeviceIDHeader = "X-Device-ID"
	UserIDHeader   = "X-User-ID"

	maxIDLength = 128
)

type ctxKey int

const (
	deviceIDKey ctxKey = iota
	deviceIssuedKey
	userIDKey
)

// DeviceMiddleware identifies the calling device. Devices without an id are
// issued a new one, which is echoed back so the client can keep it.
func DeviceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deviceID := r.Header.Get(DeviceIDHeader)
		ctx := r.Context()
		if deviceID == "" {
			deviceID = uuid.NewString()
			ctx = context.WithValue(ctx, deviceIssuedKey, true)
		}
		if len(deviceID) > maxIDLength {
			respondError(w, http.StatusBadRequest, "invalid_device_id", "device id too long")
			return
		}
		w.Header().Set(DeviceIDHeader, deviceID)
		ctx = context.WithValue(ctx, deviceIDKey, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// UserMiddleware reads the authenticated account id set by the upstream auth proxy.
// Requests without one carry no user.
func UserMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(UserIDHeader)
		if len(userID) > maxIDLength {
			respondError(w, http.StatusBadRequest, "invalid_user_id", "user id too long")
			return
		}
		if userID != "" {
			r = r.WithContext(context.WithValue(r.Context(), userIDKey, userID))
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request.
func RequestLogger(l *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			logger.FromContext(r.Context(), l).Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}

func getDeviceID(ctx context.Context) string {
	if deviceID, ok := ctx.Value(deviceIDKey).(string); ok {
		return deviceID
	}
	return ""
}

// deviceIssued reports whether the device id was generated for this request. Such
// a device has nothing stored yet.
func deviceIssued(ctx context.Context) bool {
	issued, _ := ctx.Value(deviceIssuedKey).(bool)
	return issued
}

func getUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

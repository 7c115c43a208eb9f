// Package logging builds the process logger and the request logging
// middleware.
package logging

import (
	"io"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a logger writing to w: JSON at info level in production,
// console lines at debug level otherwise.
func New(w io.Writer, production bool) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, encoder zapcore.PrimitiveArrayEncoder) {
		encoder.AppendString(d.String())
	}

	enc, level := zapcore.NewConsoleEncoder(config), zapcore.DebugLevel
	if production {
		enc, level = zapcore.NewJSONEncoder(config), zapcore.InfoLevel
	}
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), level))
}

// Requests logs every request after it was handled.  Server errors log at
// error level, client errors at info and the rest at debug.
func Requests(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status
				// logged is the one the client got.
				c.Error(err)
			}

			req, res := c.Request(), c.Response()
			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", c.Path()),
				zap.Int("status_code", res.Status),
				zap.Int64("response_size", res.Size),
				zap.String("remote", c.RealIP()),
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.Duration("took", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}

			switch {
			case res.Status >= 500:
				log.Error("Request", fields...)
			case res.Status >= 400:
				log.Info("Request", fields...)
			default:
				log.Debug("Request", fields...)
			}
			return nil
		}
	}
}

// Package logger is a thin event-logging facade over zap. Call sites log a
// short event name plus a map of structured fields; the zap core decides
// encoding (console in development, JSON in production).
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	log  *zap.Logger
	once sync.Once
)

func Init() {
	once.Do(func() {
		var err error
		if os.Getenv("APP_ENV") == "production" {
			log, err = zap.NewProduction(zap.WithCaller(false))
		} else {
			log, err = zap.NewDevelopment(zap.WithCaller(false))
		}
		if err != nil {
			// zap only fails on invalid config; fall back to a no-op core
			// rather than taking the process down for logging.
			log = zap.NewNop()
		}
	})
}

func Info(event string, fields map[string]interface{}) {
	Init()
	log.Info(event, toZapFields(fields)...)
}

func InfoWithUser(userID, event string, fields map[string]interface{}) {
	if fields == nil {
		fields = map[string]interface{}{}
	}
	fields["user_id"] = userID
	Info(event, fields)
}

func Warn(event string, fields map[string]interface{}) {
	Init()
	log.Warn(event, toZapFields(fields)...)
}

func Error(event string, err error, fields map[string]interface{}) {
	Init()
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	log.Error(event, zf...)
}

func toZapFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zf = append(zf, zap.Any(key, value))
	}
	return zf
}

package logger

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// Logger wraps logrus logger
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new logger instance
func NewLogger(serviceName string) *Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	level := os.Getenv("LOG_LEVEL")
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	log = log.WithField("service", serviceName).Logger

	return &Logger{Logger: log}
}

// WithEvent adds the public event token to the logger
func (l *Logger) WithEvent(token string) *logrus.Entry {
	return l.WithField("event", token)
}

// WithOperation adds the mutating operation name to the logger
func (l *Logger) WithOperation(op string) *logrus.Entry {
	return l.WithField("operation", op)
}

// UnaryServerInterceptor returns a new unary server interceptor for logging
func UnaryServerInterceptor(logger *Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		logger.WithFields(logrus.Fields{
			"method": info.FullMethod,
			"type":   "unary",
		}).Debug("gRPC request")

		resp, err := handler(ctx, req)

		if err != nil {
			logger.WithFields(logrus.Fields{
				"method": info.FullMethod,
				"error":  err.Error(),
			}).Error("gRPC request failed")
		}

		return resp, err
	}
}

// StreamServerInterceptor returns a new stream server interceptor for logging
func StreamServerInterceptor(logger *Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		stream grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		logger.WithFields(logrus.Fields{
			"method": info.FullMethod,
			"type":   "stream",
		}).Debug("gRPC stream started")

		err := handler(srv, stream)

		if err != nil {
			logger.WithFields(logrus.Fields{
				"method": info.FullMethod,
				"error":  err.Error(),
			}).Error("gRPC stream failed")
		}

		return err
	}
}

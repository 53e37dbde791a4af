// Package logging configures logrus for the server and its gin engine.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger output.
type Options struct {
	Debug  bool
	ToFile bool
	Dir    string
}

// Setup configures the global logrus logger and returns a closer for the
// log file, if one was opened.
func Setup(opts Options) (io.Closer, error) {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if opts.Debug {
		log.SetLevel(log.DebugLevel)
		gin.SetMode(gin.DebugMode)
	} else {
		log.SetLevel(log.InfoLevel)
		gin.SetMode(gin.ReleaseMode)
	}

	if !opts.ToFile {
		log.SetOutput(os.Stdout)
		return nopCloser{}, nil
	}

	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		dir = "./logs"
	}
	if errMkdir := os.MkdirAll(dir, 0o755); errMkdir != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", errMkdir)
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "helpergate.log"),
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     14,
		Compress:   true,
	}
	log.SetOutput(writer)
	return writer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// GinLogger logs one line per request through logrus.
func GinLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   status,
			"latency":  time.Since(start).String(),
			"clientIP": c.ClientIP(),
		})
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case status >= 500:
			entry.Error("http request")
		case status >= 400:
			entry.Warn("http request")
		default:
			entry.Debug("http request")
		}
	}
}

// GinRecovery turns panics into 500 responses and logs them.
func GinRecovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		log.WithField("panic", recovered).Error("http: handler panic")
		c.AbortWithStatusJSON(500, gin.H{"error": "internal server error"})
	})
}

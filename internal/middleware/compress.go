package middleware

import (
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// compressMinLength is the smallest body worth compressing. Below this the
// header overhead outweighs the savings.
const compressMinLength = 1024

// Compress serves brotli-encoded responses to clients that accept them.
// Results dashboards return large JSON session lists; everything else
// passes through untouched when small.
func Compress() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isUpgrade(c) || !acceptsBrotli(c) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		cw := &compressWriter{
			ResponseWriter: c.Writer,
			br:             brotli.NewWriter(c.Writer),
		}
		c.Writer = cw

		defer cw.finish()
		c.Next()
	}
}

type compressWriter struct {
	gin.ResponseWriter
	br         *brotli.Writer
	buf        []byte
	once       sync.Once
	compressed bool
}

func (w *compressWriter) Write(data []byte) (int, error) {
	w.buf = append(w.buf, data...)
	if len(w.buf) < compressMinLength {
		return len(data), nil
	}

	w.once.Do(func() {
		w.compressed = true
		w.ResponseWriter.Header().Set("Content-Encoding", "br")
		w.ResponseWriter.Header().Del("Content-Length")
	})

	n, err := w.br.Write(w.buf)
	w.buf = w.buf[:0]
	if err != nil {
		return n, err
	}
	return len(data), nil
}

func (w *compressWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// finish drains whatever is still buffered. A body that never crossed the
// threshold goes out uncompressed.
func (w *compressWriter) finish() {
	if len(w.buf) > 0 && !w.compressed {
		_, _ = w.ResponseWriter.Write(w.buf)
		w.buf = nil
	}
	if w.compressed {
		if len(w.buf) > 0 {
			_, _ = w.br.Write(w.buf)
			w.buf = nil
		}
		_ = w.br.Close()
	}
}

func isUpgrade(c *gin.Context) bool {
	return strings.EqualFold(c.GetHeader("Connection"), "upgrade") ||
		strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept-Encoding"), "br")
}

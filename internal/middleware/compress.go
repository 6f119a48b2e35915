package middleware

import (
	"compress/gzip"
	"strings"

	"github.com/gin-gonic/gin"
)

// gzipWriter decides on its first write, once the handler has set
// Content-Type, whether the response is worth compressing.
type gzipWriter struct {
	gin.ResponseWriter
	config  *CompressConfig
	writer  *gzip.Writer
	decided bool
}

func (g *gzipWriter) decide(first []byte) {
	g.decided = true

	h := g.Header()
	if h.Get("Content-Encoding") != "" || len(first) < g.config.MinLength {
		return
	}
	contentType := h.Get("Content-Type")
	shouldCompress := false
	for _, t := range g.config.Types {
		if strings.HasPrefix(contentType, t) {
			shouldCompress = true
			break
		}
	}
	if !shouldCompress {
		return
	}

	gz, err := gzip.NewWriterLevel(g.ResponseWriter, g.config.Level)
	if err != nil {
		return
	}
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")
	h.Del("Content-Length")
	g.writer = gz
}

func (g *gzipWriter) Write(data []byte) (int, error) {
	if !g.decided {
		g.decide(data)
	}
	if g.writer == nil {
		return g.ResponseWriter.Write(data)
	}
	return g.writer.Write(data)
}

func (g *gzipWriter) WriteString(s string) (int, error) {
	return g.Write([]byte(s))
}

// CompressConfig represents compression configuration
type CompressConfig struct {
	Level     int
	MinLength int
	Types     []string
	Blacklist []string
}

// DefaultCompressConfig compresses CSV and JSON. PDFs are already compressed.
func DefaultCompressConfig() CompressConfig {
	return CompressConfig{
		Level:     gzip.DefaultCompression,
		MinLength: 1024,
		Types: []string{
			"application/json",
			"text/csv",
			"text/plain",
		},
		Blacklist: []string{
			"/metrics",
		},
	}
}

// Compress adds gzip compression to responses
func Compress(config CompressConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Skip compression for blacklisted paths
		for _, path := range config.Blacklist {
			if strings.HasPrefix(c.Request.URL.Path, path) {
				c.Next()
				return
			}
		}

		// Check if client accepts gzip
		if !strings.Contains(c.Request.Header.Get("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gw := &gzipWriter{ResponseWriter: c.Writer, config: &config}
		c.Writer = gw
		defer func() {
			if gw.writer != nil {
				gw.writer.Close()
			}
		}()

		c.Next()
	}
}

// File: internal/network/compression.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Reader pools keep decompression cheap across the pre-warm, login and action
// requests of a run.
var (
	gzipReaders = sync.Pool{
		New: func() interface{} { return new(gzip.Reader) },
	}
	brotliReaders = sync.Pool{
		New: func() interface{} { return brotli.NewReader(nil) },
	}
)

var emptyReader = strings.NewReader("")

// CompressionMiddleware is an http.RoundTripper that advertises br/gzip/deflate
// on outgoing requests and transparently decompresses the response body. The
// target negotiates brotli with browser-looking clients, so the direct channel
// must speak it too.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps the given transport; nil falls back to
// http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

// RoundTrip implements http.RoundTripper.
func (cm *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "br, gzip, deflate, identity")
	}

	resp, err := cm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := decompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to initialize response decompression: %w", err)
	}
	return resp, nil
}

// closeWrapper closes the decompression reader and the underlying body, and
// returns pooled readers via the callback.
type closeWrapper struct {
	io.ReadCloser
	originalBody io.ReadCloser
	poolCallback func()
}

func (w *closeWrapper) Close() error {
	if w.poolCallback != nil {
		w.poolCallback()
		w.poolCallback = nil
	}
	return errors.Join(w.ReadCloser.Close(), w.originalBody.Close())
}

// decompressResponse wraps resp.Body with decoders for each Content-Encoding
// layer, applied in reverse order. On error the body may be partially consumed
// and must be discarded by the caller.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encodings := resp.Header.Values("Content-Encoding")
	if len(encodings) == 0 {
		return nil
	}

	for i := len(encodings) - 1; i >= 0; i-- {
		encoding := strings.ToLower(strings.TrimSpace(encodings[i]))

		var reader io.ReadCloser
		var poolCallback func()

		switch encoding {
		case "gzip":
			zr := gzipReaders.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipReaders.Put(zr)
				return fmt.Errorf("gzip initialization error: %w", err)
			}
			reader = zr
			poolCallback = func() {
				_ = zr.Reset(emptyReader)
				gzipReaders.Put(zr)
			}

		case "br":
			br := brotliReaders.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliReaders.Put(br)
				return fmt.Errorf("brotli initialization error: %w", err)
			}
			reader = io.NopCloser(br)
			poolCallback = func() {
				_ = br.Reset(emptyReader)
				brotliReaders.Put(br)
			}

		case "deflate":
			var err error
			reader, err = tryDeflate(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate initialization error: %w", err)
			}

		case "identity", "":
			continue

		default:
			return fmt.Errorf("unsupported Content-Encoding layer: %s", encoding)
		}

		resp.Body = &closeWrapper{
			ReadCloser:   reader,
			originalBody: resp.Body,
			poolCallback: poolCallback,
		}
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// tryDeflate decodes as zlib (RFC 1950), falling back to raw deflate
// (RFC 1951) for servers that send bare streams.
func tryDeflate(r io.Reader) (io.ReadCloser, error) {
	buf := bytes.NewBuffer(make([]byte, 0, 128))
	tee := io.TeeReader(r, buf)

	zr, err := zlib.NewReader(tee)
	if err == nil {
		return zr, nil
	}
	rewound := io.MultiReader(bytes.NewReader(buf.Bytes()), r)
	return flate.NewReader(rewound), nil
}

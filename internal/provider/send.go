package provider

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"orchestrationapi/internal/httpclient"
	"orchestrationapi/internal/utils"
)

// clientManager is shared by every adapter, grounded on the teacher's
// fingerprint-keyed HTTPClientManager (internal/httpclient/manager.go):
// adapters that end up with identical timeout/proxy configuration reuse
// the same *http.Client and its connection pool instead of each dialing
// its own.
var clientManager = httpclient.NewHTTPClientManager()

// doSend issues method/url with body and headers, selecting the unary or
// streaming timeout from cfg. On 2xx with streaming=true, Response.Stream
// is the live response body and the caller owns closing it; otherwise the
// body is fully buffered.
func doSend(ctx context.Context, method, url string, body []byte, headers http.Header, cfg Config, streaming bool) (*Response, error) {
	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = strings.NewReader(string(body))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header = headers

	client := buildHTTPClient(cfg, streaming)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if streaming && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		stream := resp.Body
		if encoding := resp.Header.Get("Content-Encoding"); encoding != "" {
			// Streaming requests disabling Accept-Encoding doesn't stop a
			// provider from compressing anyway, so an SSE body can still
			// arrive gzip/br/zstd-encoded; decode it incrementally rather
			// than buffering the whole stream. NewDecompressReader closes
			// resp.Body itself on a decoder-creation failure, so the error
			// must propagate rather than fall back to the (now-closed) body.
			decoded, decErr := utils.NewDecompressReader(encoding, resp.Body)
			if decErr != nil {
				return nil, decErr
			}
			stream = decoded
		}
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Stream: stream}, nil
	}

	defer resp.Body.Close()
	// Every unary provider response passes through here, so it borrows a
	// size-tiered buffer from the pool rather than letting io.ReadAll grow
	// its own from scratch on every call.
	pooled := utils.GetBufferWithCapacity(int(resp.ContentLength))
	if _, err := pooled.ReadFrom(resp.Body); err != nil {
		utils.PutBuffer(pooled)
		return nil, err
	}
	buf := make([]byte, pooled.Len())
	copy(buf, pooled.Bytes())
	utils.PutBuffer(pooled)

	// net/http's transport auto-decompresses gzip and strips Content-Encoding
	// for unary requests (DisableCompression is false there), but a provider
	// sitting behind a CDN can still return br/zstd/deflate regardless of the
	// (absent, for streaming) Accept-Encoding hint, so any remaining
	// Content-Encoding is decompressed explicitly before the body reaches the
	// dialect-specific response parser.
	if encoding := resp.Header.Get("Content-Encoding"); encoding != "" {
		// DecompressResponse never errors out to the caller: an unknown
		// encoding or a malformed body just logs a warning and returns buf
		// unchanged.
		buf, _ = utils.DecompressResponse(strings.ToLower(encoding), buf)
	}

	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: buf}, nil
}

func buildHTTPClient(cfg Config, streaming bool) *http.Client {
	responseTimeout := cfg.UnaryResponseTimeout
	if streaming {
		responseTimeout = cfg.StreamResponseTimeout
	}
	if responseTimeout <= 0 {
		responseTimeout = 180 * time.Second
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}

	clientCfg := &httpclient.Config{
		ConnectTimeout:        connectTimeout,
		RequestTimeout:        responseTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		ResponseHeaderTimeout: responseTimeout,
		DisableCompression:    streaming,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ProxyURL:              cfg.ProxyURL,
	}
	if streaming {
		clientCfg.RequestTimeout = 0
	}
	return clientManager.GetClient(clientCfg)
}

package asr

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewHTTPClient returns a client with a pooled, HTTP/2-capable transport.
// Per-request deadlines come from the caller's context.
func NewHTTPClient() *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	_ = http2.ConfigureTransport(tr)
	return &http.Client{Transport: tr}
}

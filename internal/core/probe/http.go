package probe

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/proxy"
)

// Response is the normalized result of one probe request.
type Response struct {
	Status  int
	Body    []byte
	Latency time.Duration
	Title   string
}

// Fetcher issues one request to rawURL through the node listening on localPort.
type Fetcher interface {
	Fetch(ctx context.Context, localPort int, method, rawURL string) (*Response, error)
}

// HTTPFetcher routes requests through the core's per-node local listeners.
type HTTPFetcher struct {
	Host               string
	Scheme             string // "http" or "socks5"
	Timeout            time.Duration
	InsecureSkipVerify bool
	MaxBodyBytes       int64
}

func (f *HTTPFetcher) client(localPort int) (*http.Client, error) {
	addr := net.JoinHostPort(f.Host, strconv.Itoa(localPort))
	dialer := &net.Dialer{Timeout: f.Timeout}

	transport := &http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: f.InsecureSkipVerify},
		TLSHandshakeTimeout: f.Timeout,
		DisableKeepAlives:   true,
		ForceAttemptHTTP2:   true,
	}

	switch f.Scheme {
	case "socks5":
		d, err := proxy.SOCKS5("tcp", addr, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		transport.DialContext = cd.DialContext
	default:
		proxyURL, err := url.Parse("http://" + addr)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		transport.DialContext = dialer.DialContext
	}

	return &http.Client{
		Transport: transport,
		Timeout:   f.Timeout,
		// Redirect status codes are part of the verdict, never follow them.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, localPort int, method, rawURL string) (*Response, error) {
	client, err := f.client(localPort)
	if err != nil {
		return nil, err
	}
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", randomUserAgent())
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	out := &Response{
		Status:  resp.StatusCode,
		Body:    body,
		Latency: roundUpMillis(time.Since(start)),
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		out.Title = htmlTitle(body)
	}
	return out, nil
}

// htmlTitle extracts <title> for diagnostics; empty when the body is not parseable.
func htmlTitle(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if r := []rune(title); len(r) > 80 {
		title = string(r[:80])
	}
	return title
}

func roundUpMillis(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return (d + time.Millisecond - 1).Truncate(time.Millisecond)
}

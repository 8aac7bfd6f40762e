package media

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	xproxy "golang.org/x/net/proxy"
)

// HTTPClientConfig configures the client used to reach the video source.
type HTTPClientConfig struct {
	Timeout  time.Duration
	UseProxy bool
	ProxyURL string   // socks5://[user:pass@]host:port
	NoProxy  []string // hosts, domain suffixes or CIDRs dialed directly
}

// NewHTTPClient returns a pooled client. When a proxy is configured every
// host outside NoProxy (and outside loopback/private ranges) is dialed
// through SOCKS5.
func NewHTTPClient(cfg HTTPClientConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	baseDialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 nil,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		DialContext:           baseDialer.DialContext,
	}

	if cfg.UseProxy && cfg.ProxyURL != "" {
		socks, err := socksDialer(cfg.ProxyURL, baseDialer)
		if err != nil {
			return nil, err
		}
		noProxy := cfg.NoProxy
		transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(address)
			if err != nil {
				host = address
			}
			if hostInNoProxy(host, noProxy) {
				return baseDialer.DialContext(ctx, network, address)
			}
			return socks.DialContext(ctx, network, address)
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

func socksDialer(raw string, forward *net.Dialer) (xproxy.ContextDialer, error) {
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q (want socks5)", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url: missing host")
	}

	var auth *xproxy.Auth
	if u.User != nil {
		pass, _ := u.User.Password()
		auth = &xproxy.Auth{User: u.User.Username(), Password: pass}
	}

	d, err := xproxy.SOCKS5("tcp", u.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("cannot create socks5 dialer: %w", err)
	}
	cd, ok := d.(xproxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}
	return cd, nil
}

// hostInNoProxy reports whether host should bypass the proxy.
func hostInNoProxy(host string, noProxy []string) bool {
	host = strings.ToLower(strings.Trim(host, "[]"))
	ip := net.ParseIP(host)

	for _, token := range noProxy {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if token == "*" {
			return true
		}
		token = strings.TrimPrefix(token, ".")
		if host == token || strings.HasSuffix(host, "."+token) {
			return true
		}
		if ip != nil {
			if _, cidr, err := net.ParseCIDR(token); err == nil && cidr.Contains(ip) {
				return true
			}
		}
	}

	if ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}
	return host == "localhost"
}

package chain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultProxyCheckURL answers with the caller's egress IP as plain text.
const DefaultProxyCheckURL = "http://eth0.me"

const proxyCheckTimeout = 10 * time.Second

// NormalizeProxy adds an http scheme to bare "user:pass@host:port" proxies.
func NormalizeProxy(proxy string) string {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" || strings.Contains(proxy, "http") {
		return proxy
	}
	return "http://" + proxy
}

func proxyHTTPClient(proxy string) (*http.Client, error) {
	u, err := url.Parse(proxy)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: cannot parse %q", ErrInvalidProxy, proxy)
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyURL(u),
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     30 * time.Second,
		},
		Timeout: 30 * time.Second,
	}, nil
}

// CheckProxy asks checkURL for the egress IP through client and requires that IP to
// appear in the proxy string. A proxy that does not hide the real address fails.
func CheckProxy(ctx context.Context, client *http.Client, checkURL, proxy string) error {
	ctx, cancel := context.WithTimeout(ctx, proxyCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, checkURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProxy, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return fmt.Errorf("%w: read egress ip: %v", ErrInvalidProxy, err)
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" || !strings.Contains(proxy, ip) {
		return fmt.Errorf("%w: egress ip is %q", ErrInvalidProxy, ip)
	}
	return nil
}

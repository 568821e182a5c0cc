package httpclient

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/teranos/breg-harvester/errors"
)

// ErrBlocked marks requests refused by SSRF protection
var ErrBlocked = errors.New("destination blocked")

// ValidateURL parses urlStr and checks it is a fetchable http(s) URL.
// With blockPrivate set, localhost names and literal private addresses
// are refused; names resolving to private addresses are refused at dial time.
func ValidateURL(urlStr string, blockPrivate bool) (*url.URL, error) {
	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := validateURL(u, blockPrivate); err != nil {
		return nil, err
	}
	return u, nil
}

func validateURL(u *url.URL, blockPrivate bool) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return errors.Newf("scheme %q not allowed", scheme)
	}

	hostname := u.Hostname()
	if hostname == "" {
		return errors.New("URL missing hostname")
	}

	if !blockPrivate {
		return nil
	}

	// http://public.example@localhost/ style confusion
	if u.User != nil {
		return errors.Wrap(ErrBlocked, "URL carries userinfo")
	}
	if isLocalhost(hostname) {
		return errors.Wrap(ErrBlocked, "localhost access blocked")
	}
	if ip := net.ParseIP(hostname); ip != nil && isPrivateIP(ip) {
		return errors.Wrapf(ErrBlocked, "private IP address blocked: %s", hostname)
	}
	return nil
}

func newTransport(blockPrivate bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if !blockPrivate {
		return t
	}

	// Resolve once and dial the checked address, so a second lookup
	// cannot rebind the name to a private address.
	t.Proxy = nil
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, errors.Wrap(err, "invalid address")
		}

		ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to resolve host %q", host)
		}
		if len(ips) == 0 {
			return nil, errors.Newf("no addresses for host %q", host)
		}
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return nil, errors.Wrapf(ErrBlocked, "private IP address blocked: %s", ip)
			}
		}

		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
	}
	return t
}

var privateBlocks = func() []*net.IPNet {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"0.0.0.0/8",
		"100.64.0.0/10", // carrier-grade NAT
		"224.0.0.0/4",
		"240.0.0.0/4",
		"fc00::/7",
		"fec0::/10",
		"2001:db8::/32",
	}
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, n)
	}
	return blocks
}()

// isPrivateIP checks if an IP is in private or special-use ranges
func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsMulticast() || ip.IsUnspecified() {
		return true
	}
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isLocalhost(hostname string) bool {
	hostname = strings.ToLower(strings.TrimSuffix(hostname, "."))
	return hostname == "localhost" ||
		hostname == "localhost.localdomain" ||
		strings.HasSuffix(hostname, ".localhost")
}

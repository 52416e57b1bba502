package dnsbl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
	"golang.org/x/net/proxy"
)

// ErrInvalidAddress marks input that is not a syntactically valid IP address.
// It is raised before any network access is attempted.
var ErrInvalidAddress = errors.New("invalid ip address")

// Status classifies the outcome of querying one blocklist zone.
type Status int

const (
	StatusListed Status = iota
	StatusNotListed
	StatusUnreachable
)

// Outcome is the result of checking one address against one zone. A zone that
// flags the address reports StatusListed together with the response codes it
// returned. Network and timeout failures report StatusUnreachable and are
// never conflated with StatusNotListed.
type Outcome struct {
	Zone   string
	Status Status
	Codes  []string
	Err    error
}

type exchangeFunc func(ctx context.Context, msg *dns.Msg, resolver string) (*dns.Msg, error)

// Client issues reverse-form queries against DNS-based blocklist zones.
type Client struct {
	zones     []string
	resolvers []string
	timeout   time.Duration
	exchange  exchangeFunc
}

type Options struct {
	Zones     []string
	Resolvers []string
	Timeout   time.Duration

	// Socks5Proxy tunnels the queries over DNS-over-TCP through the given
	// proxy when set. Accepts "host:port" or a socks5:// URL.
	Socks5Proxy string
}

const defaultTimeout = 10 * time.Second

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := &Client{
		zones:     opts.Zones,
		resolvers: opts.Resolvers,
		timeout:   timeout,
	}

	if opts.Socks5Proxy != "" {
		client.exchange = proxiedExchange(opts.Socks5Proxy, timeout)
	} else {
		client.exchange = client.directExchange
	}

	return client
}

// Zones returns the blocklist zones this client queries.
func (c *Client) Zones() []string {
	return c.zones
}

// Check queries every configured zone for address and returns one outcome per
// zone. Malformed addresses fail with ErrInvalidAddress before any query is
// sent.
func (c *Client) Check(ctx context.Context, address string) ([]Outcome, error) {
	reversed, err := ReverseAddr(address)
	if err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, 0, len(c.zones))
	for _, zone := range c.zones {
		outcomes = append(outcomes, c.queryZone(ctx, reversed, zone))
	}
	return outcomes, nil
}

func (c *Client) queryZone(ctx context.Context, reversed, zone string) Outcome {
	outcome := Outcome{Zone: zone}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(reversed+"."+zone), dns.TypeA)

	var lastErr error
	for _, resolver := range c.resolvers {
		queryCtx, cancel := context.WithTimeout(ctx, c.timeout)
		reply, err := c.exchange(queryCtx, msg, resolver)
		cancel()

		if err != nil {
			lastErr = err
			continue
		}

		switch reply.Rcode {
		case dns.RcodeSuccess:
			outcome.Codes = extractCodes(reply)
			if len(outcome.Codes) == 0 {
				// Some zones answer NOERROR with an empty section for
				// unlisted addresses.
				outcome.Status = StatusNotListed
			} else {
				outcome.Status = StatusListed
			}
			return outcome
		case dns.RcodeNameError:
			outcome.Status = StatusNotListed
			return outcome
		default:
			lastErr = fmt.Errorf("zone %s: unexpected rcode %s", zone, dns.RcodeToString[reply.Rcode])
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no resolvers configured")
	}
	outcome.Status = StatusUnreachable
	outcome.Err = lastErr
	return outcome
}

func (c *Client) directExchange(ctx context.Context, msg *dns.Msg, resolver string) (*dns.Msg, error) {
	client := &dns.Client{Timeout: c.timeout}

	reply, _, err := client.ExchangeContext(ctx, msg, resolver)
	if err != nil {
		return nil, err
	}

	if reply.Truncated {
		tcpClient := &dns.Client{Net: "tcp", Timeout: c.timeout}
		reply, _, err = tcpClient.ExchangeContext(ctx, msg, resolver)
		if err != nil {
			return nil, err
		}
	}

	return reply, nil
}

// proxiedExchange tunnels queries through a SOCKS5 proxy. SOCKS5 offers no
// UDP associate here, so queries ride DNS-over-TCP.
func proxiedExchange(proxyAddr string, timeout time.Duration) exchangeFunc {
	host := strings.TrimPrefix(proxyAddr, "socks5://")

	dialer, err := proxy.SOCKS5("tcp", host, nil, proxy.Direct)
	if err != nil {
		return func(context.Context, *dns.Msg, string) (*dns.Msg, error) {
			return nil, fmt.Errorf("creating SOCKS5 dialer for DNS: %w", err)
		}
	}

	ctxDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return func(context.Context, *dns.Msg, string) (*dns.Msg, error) {
			return nil, errors.New("SOCKS5 dialer does not implement ContextDialer")
		}
	}

	return func(ctx context.Context, msg *dns.Msg, resolver string) (*dns.Msg, error) {
		conn, err := ctxDialer.DialContext(ctx, "tcp", resolver)
		if err != nil {
			return nil, err
		}
		defer conn.Close()

		client := &dns.Client{Net: "tcp", Timeout: timeout}
		reply, _, err := client.ExchangeWithConnContext(ctx, msg, &dns.Conn{Conn: conn})
		if err != nil {
			return nil, err
		}
		return reply, nil
	}
}

func extractCodes(reply *dns.Msg) []string {
	codes := make([]string, 0, len(reply.Answer))
	for _, answer := range reply.Answer {
		if a, ok := answer.(*dns.A); ok {
			codes = append(codes, a.A.String())
		}
	}
	return codes
}

const hexDigit = "0123456789abcdef"

// ReverseAddr converts an IP address into the reversed label form blocklist
// zones expect, e.g. "2.0.0.127" for 127.0.0.2. IPv6 addresses expand into
// reversed nibble labels.
func ReverseAddr(address string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(address))
	if ip == nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	if ip4 := ip.To4(); ip4 != nil {
		return fmt.Sprintf("%d.%d.%d.%d", ip4[3], ip4[2], ip4[1], ip4[0]), nil
	}

	ip16 := ip.To16()
	buf := make([]byte, 0, len(ip16)*4)
	for i := len(ip16) - 1; i >= 0; i-- {
		buf = append(buf, hexDigit[ip16[i]&0xf], '.', hexDigit[ip16[i]>>4])
		if i > 0 {
			buf = append(buf, '.')
		}
	}
	return string(buf), nil
}

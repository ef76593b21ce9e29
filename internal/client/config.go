package client

import (
	"fmt"
	"log"
	"math"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/die-net/sockslink/internal/dialer"
)

// DefaultPort is the IANA port for SOCKS.
const DefaultPort = 1080

// Auth holds RFC 1929 credentials. Each field is 1 to 255 bytes.
type Auth struct {
	Username string
	Password string
}

// Config describes how to reach and talk to one SOCKS5 server. It is checked
// once by New and not modified afterwards.
type Config struct {
	Host string
	Port int

	// ConnectTimeout bounds opening the transport to the proxy. Zero means
	// no limit beyond the caller's context.
	ConnectTimeout time.Duration
	// Timeout bounds every individual read and write on the proxy
	// connection and the relay socket. Zero means no limit.
	Timeout time.Duration

	// Auth selects username/password authentication when non-nil;
	// otherwise no authentication is offered.
	Auth *Auth

	// Dialer opens the transport to Host:Port. Nil dials directly.
	Dialer dialer.Dialer

	// UDPBufferSize sizes the relay socket's kernel buffers when positive.
	UDPBufferSize int

	// Logger receives negotiation traces. Nil disables them.
	Logger *log.Logger
}

// ConfigError reports a Config field that New rejected.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("socks5 client: invalid %s: %s", e.Field, e.Reason)
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return &ConfigError{Field: "host", Reason: "must not be empty"}
	}
	if c.Port < 1 || c.Port > math.MaxUint16 {
		return &ConfigError{Field: "port", Reason: fmt.Sprintf("%d not in 1-65535", c.Port)}
	}
	if c.ConnectTimeout < 0 {
		return &ConfigError{Field: "connect timeout", Reason: "must not be negative"}
	}
	if c.Timeout < 0 {
		return &ConfigError{Field: "timeout", Reason: "must not be negative"}
	}
	if c.UDPBufferSize < 0 {
		return &ConfigError{Field: "udp buffer size", Reason: "must not be negative"}
	}
	if c.Auth != nil {
		if err := checkCredential("username", c.Auth.Username); err != nil {
			return err
		}
		if err := checkCredential("password", c.Auth.Password); err != nil {
			return err
		}
	}
	return nil
}

func checkCredential(field, s string) error {
	if len(s) == 0 || len(s) > math.MaxUint8 {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("length %d not in 1-255", len(s))}
	}
	return nil
}

// ParseProxyURL builds a Config from socks5://[user:pass@]host[:port]. The
// socks5h scheme is accepted as a synonym; names are always resolved by the
// proxy.
func ParseProxyURL(s string) (Config, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Config{}, &ConfigError{Field: "proxy url", Reason: err.Error()}
	}
	switch strings.ToLower(u.Scheme) {
	case "socks5", "socks5h":
	default:
		return Config{}, &ConfigError{Field: "proxy url", Reason: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
	}
	if u.Hostname() == "" {
		return Config{}, &ConfigError{Field: "proxy url", Reason: "missing host"}
	}

	cfg := Config{Host: u.Hostname(), Port: DefaultPort}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return Config{}, &ConfigError{Field: "port", Reason: err.Error()}
		}
		cfg.Port = port
	}
	if u.User != nil {
		pass, _ := u.User.Password()
		cfg.Auth = &Auth{Username: u.User.Username(), Password: pass}
	}
	return cfg, cfg.validate()
}

func (c *Config) proxyAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

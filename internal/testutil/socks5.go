package testutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"slices"
	"strconv"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sync/errgroup"
)

// SOCKS5Server is a scripted RFC 1928 server for exercising clients. It
// serves CONNECT by dialing the destination and UDP ASSOCIATE with a loopback
// relay that forwards one reply datagram per request.
type SOCKS5Server struct {
	// Username and Password, when set, require RFC 1929 authentication.
	Username string
	Password string

	// Reply, when non-zero, answers every request with this reply code.
	Reply byte

	// UnspecifiedBind advertises 0.0.0.0 as the UDP relay address.
	UnspecifiedBind bool

	// Hangup, when closed, makes the server drop the control connection of
	// every active association.
	Hangup <-chan struct{}
}

// StartSOCKS5Server serves s on a loopback listener until ctx ends.
func StartSOCKS5Server(t *testing.T, ctx context.Context, s SOCKS5Server) net.Listener {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	context.AfterFunc(ctx, func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				if err := s.Serve(ctx, c); err != nil {
					t.Logf("socks5 test server: %v", err)
				}
			}()
		}
	}()

	return ln
}

// Serve runs one client session on c.
func (s SOCKS5Server) Serve(ctx context.Context, c net.Conn) error {
	if err := s.negotiate(c); err != nil {
		return err
	}

	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}

	if s.Reply != 0 {
		return WriteSOCKS5Reply(c, s.Reply, "")
	}

	switch req.Cmd {
	case txsocks5.CmdConnect:
		return s.connect(ctx, c, req.Address())
	case txsocks5.CmdUDP:
		return s.associate(ctx, c)
	default:
		return WriteSOCKS5Reply(c, txsocks5.RepCommandNotSupported, "")
	}
}

func (s SOCKS5Server) negotiate(c net.Conn) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(c)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	if s.Username == "" {
		if !slices.Contains(neg.Methods, txsocks5.MethodNone) {
			_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(c)
			return errors.New("client does not offer no-auth")
		}
		_, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c)
		return err
	}

	if !slices.Contains(neg.Methods, txsocks5.MethodUsernamePassword) {
		_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUnsupportAll).WriteTo(c)
		return errors.New("client does not offer username/password")
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(c); err != nil {
		return err
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(c)
	if err != nil {
		return fmt.Errorf("userpass request: %w", err)
	}
	if string(urq.Uname) != s.Username || string(urq.Passwd) != s.Password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(c)
		return errors.New("auth failed")
	}
	_, err = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(c)
	return err
}

func (s SOCKS5Server) connect(ctx context.Context, c net.Conn, address string) error {
	var d net.Dialer
	dst, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return WriteSOCKS5Reply(c, txsocks5.RepHostUnreachable, "")
	}
	defer dst.Close()

	if err := WriteSOCKS5Reply(c, txsocks5.RepSuccess, dst.LocalAddr().String()); err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error {
		_, err := io.Copy(dst, c)
		_ = dst.(*net.TCPConn).CloseWrite()
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(c, dst)
		if tc, ok := c.(*net.TCPConn); ok {
			_ = tc.CloseWrite()
		}
		return err
	})
	return g.Wait()
}

func (s SOCKS5Server) associate(ctx context.Context, c net.Conn) error {
	lc := net.ListenConfig{}
	relay, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		_ = WriteSOCKS5Reply(c, txsocks5.RepServerFailure, "")
		return err
	}
	defer relay.Close()

	out, err := lc.ListenPacket(ctx, "udp", "127.0.0.1:0")
	if err != nil {
		_ = WriteSOCKS5Reply(c, txsocks5.RepServerFailure, "")
		return err
	}
	defer out.Close()

	bound := relay.LocalAddr().String()
	if s.UnspecifiedBind {
		bound = net.JoinHostPort("0.0.0.0", strconv.Itoa(relay.LocalAddr().(*net.UDPAddr).Port))
	}
	if err := WriteSOCKS5Reply(c, txsocks5.RepSuccess, bound); err != nil {
		return err
	}

	// The association lasts as long as the control connection.
	go func() {
		_, _ = io.Copy(io.Discard, c)
		_ = relay.Close()
	}()
	if s.Hangup != nil {
		go func() {
			select {
			case <-s.Hangup:
				_ = c.Close()
			case <-ctx.Done():
			}
		}()
	}

	buf := make([]byte, 64*1024)
	rbuf := make([]byte, 64*1024)
	for {
		n, from, err := relay.ReadFrom(buf)
		if err != nil {
			return nil
		}
		d, err := txsocks5.NewDatagramFromBytes(buf[:n])
		if err != nil {
			continue
		}
		dst, err := net.ResolveUDPAddr("udp", d.Address())
		if err != nil {
			continue
		}
		if _, err := out.WriteTo(d.Data, dst); err != nil {
			continue
		}

		_ = out.SetReadDeadline(time.Now().Add(time.Second))
		m, src, err := out.ReadFrom(rbuf)
		if err != nil {
			continue
		}
		atyp, addr, port, err := splitAddress(src.String())
		if err != nil {
			continue
		}
		_, _ = relay.WriteTo(txsocks5.NewDatagram(atyp, addr, port, rbuf[:m]).Bytes(), from)
	}
}

// WriteSOCKS5Reply writes a command reply with bound as BND.ADDR:BND.PORT,
// or 0.0.0.0:0 if bound is empty.
func WriteSOCKS5Reply(w io.Writer, rep byte, bound string) error {
	atyp, addr, port := txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}
	if bound != "" {
		var err error
		if atyp, addr, port, err = splitAddress(bound); err != nil {
			return err
		}
	}
	_, err := txsocks5.NewReply(rep, atyp, addr, port).WriteTo(w)
	return err
}

// splitAddress converts host:port into the ATYP, address and port fields
// txsocks5 constructors take. Domain names lose their length prefix.
func splitAddress(hostport string) (byte, []byte, []byte, error) {
	atyp, addr, port, err := txsocks5.ParseAddress(hostport)
	if err != nil {
		return 0, nil, nil, err
	}
	if atyp == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	return atyp, addr, port, nil
}

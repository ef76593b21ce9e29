package relay

import (
	"context"
	"errors"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/sockslink/internal/dialer"
)

// Bidirectional copies between left and right until both directions reach
// EOF, one of them fails, or ctx ends. EOF in one direction half-closes the
// destination where the connection supports it. Both connections are closed
// on return.
func Bidirectional(ctx context.Context, left, right net.Conn) error {
	var closeOnce sync.Once
	closeBoth := func() {
		closeOnce.Do(func() {
			_ = left.Close()
			_ = right.Close()
		})
	}
	defer closeBoth()

	g, gctx := errgroup.WithContext(ctx)

	// gctx ends when either copy fails or, after Wait, when both are done.
	stop := context.AfterFunc(gctx, closeBoth)
	defer stop()

	g.Go(func() error {
		return copyHalf(left, right)
	})
	g.Go(func() error {
		return copyHalf(right, left)
	})

	err := g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func copyHalf(dst, src net.Conn) error {
	if _, err := copyBuffered(dst, src); err != nil {
		return err
	}
	if err := dialer.CloseWrite(dst); err != nil && !errors.Is(err, errors.ErrUnsupported) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

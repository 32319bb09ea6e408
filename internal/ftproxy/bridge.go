package ftproxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

var bufPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, DefaultLineSize)
	},
}

type readerFunc func(p []byte) (n int, err error)

func (rf readerFunc) Read(p []byte) (n int, err error) { return rf(p) }

type writerFunc func(p []byte) (n int, err error)

func (wf writerFunc) Write(p []byte) (n int, err error) { return wf(p) }

// Bridge streams src into dst one chunk at a time until src reports end of
// data. Each read must complete within idle, otherwise Bridge stops with
// ErrDataTimeout. A zero idle disables the deadline.
func Bridge(ctx context.Context, dst io.Writer, src net.Conn, idle time.Duration) (int64, error) {
	buf := bufPool.Get().([]byte)
	defer bufPool.Put(buf)

	// The wrappers hide ReaderFrom/WriterTo so io.CopyBuffer keeps to buf.
	n, err := io.CopyBuffer(writerFunc(dst.Write), readerFunc(func(p []byte) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if idle > 0 {
			if err := src.SetReadDeadline(time.Now().Add(idle)); err != nil {
				return 0, err
			}
		}
		return src.Read(p)
	}), buf)
	if err != nil && isTimeout(err) {
		return n, fmt.Errorf("%w after %s", ErrDataTimeout, idle)
	}
	return n, err
}

package proxy

import (
	"io"
	"net"
)

// tunnelBufferSize is the buffer raw forwarding reads into. spec.md §9
// notes the original implementation's 1-byte buffer is "almost certainly a
// performance bug, not a contract" and recommends an adequately sized
// buffer; 8 KiB is used here, a quarter of the 32 KiB buffer io.Copy
// would allocate on its own.
const tunnelBufferSize = 8 * 1024

// rawForward bidirectionally copies bytes between client and upstream
// until either side closes or errors (spec.md §4.4). Each direction runs
// on its own goroutine; closing client terminates the peer goroutine's
// read. Byte counts are logged on termination.
func (p *Proxy) rawForward(logger Sink, client, upstreamConn net.Conn) {
	done := make(chan struct{}, 2)

	go func() {
		n, err := copyBuffered(upstreamConn, client)
		logger.Info("client to upstream closed", "bytes", n, "error", errString(err))
		upstreamConn.Close()
		done <- struct{}{}
	}()
	go func() {
		n, err := copyBuffered(client, upstreamConn)
		logger.Info("upstream to client closed", "bytes", n, "error", errString(err))
		client.Close()
		done <- struct{}{}
	}()

	<-done
	<-done
}

func copyBuffered(dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, tunnelBufferSize)
	return io.CopyBuffer(dst, src, buf)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

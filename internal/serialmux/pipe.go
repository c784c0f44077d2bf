package serialmux

import (
	"bytes"
	"io"
	"sync"
)

// PipePort is a SerialPorter whose input comes from an in-process writer. It
// lets the synthetic tracker, or a recorded capture, drive a SerialMux
// exactly as hardware would. Commands written to the port are kept for
// inspection.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

// NewPipePort returns a port and the writer that feeds its read side.
// Closing the writer makes Monitor see EOF.
func NewPipePort() (*PipePort, io.WriteCloser) {
	r, w := io.Pipe()
	return &PipePort{r: r, w: w}, w
}

func (p *PipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *PipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

// Close closes both ends of the pipe so pending reads and writes return.
func (p *PipePort) Close() error {
	p.w.Close()
	return p.r.Close()
}

// Written returns everything written to the port so far.
func (p *PipePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

// NewPipeSerialMux returns a SerialMux fed by the returned writer.
func NewPipeSerialMux() (*SerialMux[*PipePort], io.WriteCloser) {
	port, w := NewPipePort()
	return NewSerialMux(port), w
}

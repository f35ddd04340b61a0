// Package emitter implements the emitter (C6): it hands a completed flow
// datagram to zero or more UDP destinations and/or a synthetic capture-file
// record, matching the wire contract in SPEC_FULL.md §6.
package emitter

import (
	"fmt"
	"net"
	"time"

	"dnsflow/internal/pkg/constants"
	"dnsflow/internal/pkg/logger"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// FileWriter is the narrow capture-file-writing surface the emitter needs;
// satisfied by *pcapgo.Writer. Kept as an interface so tests can stub it.
type FileWriter interface {
	WritePacket(ci gopacket.CaptureInfo, data []byte) error
}

// Emitter implements C6: best-effort UDP fan-out plus optional capture-file
// archival. A send error to one destination never aborts the others
// (SendWarn in the error taxonomy).
type Emitter struct {
	conn  *net.UDPConn
	dests []*net.UDPAddr
	file  FileWriter
}

// New constructs an Emitter for the given UDP destination addresses
// (host-only; SPEC_FULL.md's fixed port constants.DefaultUDPPort is always
// used) and an optional capture-file writer. Passing more than
// constants.MaxUDPDestinations is a ConfigError.
func New(destHosts []string, file FileWriter) (*Emitter, error) {
	if len(destHosts) > constants.MaxUDPDestinations {
		return nil, fmt.Errorf("too many udp destinations: %d (max %d)", len(destHosts), constants.MaxUDPDestinations)
	}

	e := &Emitter{file: file}
	for _, host := range destHosts {
		ip := net.ParseIP(host)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid udp destination ip: %q", host)
		}
		e.dests = append(e.dests, &net.UDPAddr{IP: ip.To4(), Port: constants.DefaultUDPPort})
	}
	return e, nil
}

// NewFileWriter wraps w, a freshly created *pcapgo.Writer, after writing its
// DLT_NULL file header. Callers must create w over a truncated/empty file.
func NewFileWriter(w *pcapgo.Writer) (FileWriter, error) {
	if err := w.WriteFileHeader(constants.DefaultSnapLen, layers.LinkTypeNull); err != nil {
		return nil, fmt.Errorf("write capture file header: %w", err)
	}
	return w, nil
}

// Send implements flowpacket.Sink: it writes data to the capture file (if
// configured) and then to every UDP destination. Errors are logged, not
// returned, matching the spec's SendWarn/"not fatal" handling — the single
// error return exists only so flowpacket.Builder can surface a fatal setup
// failure (none occur on this path today) without changing the interface.
func (e *Emitter) Send(data []byte) error {
	if e.file != nil {
		if err := e.writeFileRecord(data); err != nil {
			logger.Warn("capture file write failed", "error", err)
		}
	}

	if len(e.dests) == 0 {
		return nil
	}
	if err := e.ensureConn(); err != nil {
		logger.Warn("udp socket setup failed", "error", err)
		return nil
	}

	for _, dst := range e.dests {
		if _, err := e.conn.WriteToUDP(data, dst); err != nil {
			logger.Warn("udp send failed", "dest", dst.String(), "error", err)
		}
	}
	return nil
}

// writeFileRecord prepends the 4-byte PF_UNSPEC loopback header C6 requires
// and writes the combined record; capture/wire length equals len(data)+4.
func (e *Emitter) writeFileRecord(data []byte) error {
	rec := make([]byte, 4+len(data))
	// constants.LoopbackLinkHeader is 0 (PF_UNSPEC); left zeroed.
	copy(rec[4:], data)

	ci := gopacket.CaptureInfo{
		Timestamp:     time.Now(),
		CaptureLength: len(rec),
		Length:        len(rec),
	}
	return e.file.WritePacket(ci, rec)
}

// ensureConn lazily creates the shared UDP socket, retained for the
// process lifetime per spec.md §4.6.
func (e *Emitter) ensureConn() error {
	if e.conn != nil {
		return nil
	}
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return fmt.Errorf("open udp socket: %w", err)
	}
	e.conn = conn
	return nil
}

// Close releases the UDP socket, if one was opened. It does not close the
// capture file; the caller owns that.
func (e *Emitter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

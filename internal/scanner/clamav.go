// Package scanner implements the wire protocol client for the ClamAV scanning
// daemon. It speaks the length-prefixed INSTREAM protocol and classifies the
// daemon's single-line reply; connection and deadline failures are folded into
// the classification rather than raised, so a scan never crashes the caller.
package scanner

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"docvault/internal/config"
)

const (
	cmdInstream = "zINSTREAM\x00"
	cmdPing     = "zPING\x00"
	cmdVersion  = "zVERSION\x00"

	replyBufSize    = 1024
	unknownVersion  = "unknown"
	disabledVersion = "disabled"
)

// Class is the protocol-level classification of one scan.
type Class string

const (
	ClassClean    Class = "clean"
	ClassInfected Class = "infected"
	ClassError    Class = "error"
)

// Outcome is the result of streaming content to the daemon. When Class is
// ClassError, Raw holds the raw reply or transport failure for diagnostics.
type Outcome struct {
	Class      Class
	ThreatName string
	Raw        string
	Version    string
	Duration   time.Duration
}

// Client streams content to a ClamAV daemon over TCP. The zero value is not
// usable; construct with New.
type Client struct {
	addr         string
	enabled      bool
	scanTimeout  time.Duration
	probeTimeout time.Duration
	chunkSize    int
	dialer       net.Dialer
	logger       *zap.Logger
}

// New builds a scanner client from configuration.
func New(cfg config.ClamAVConfig, logger *zap.Logger) *Client {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = 8192
	}
	scanTO := cfg.ScanTimeout
	if scanTO <= 0 {
		scanTO = 30 * time.Second
	}
	probeTO := cfg.ProbeTimeout
	if probeTO <= 0 {
		probeTO = 10 * time.Second
	}
	return &Client{
		addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		enabled:      cfg.Enabled,
		scanTimeout:  scanTO,
		probeTimeout: probeTO,
		chunkSize:    chunk,
		logger:       logger,
	}
}

// Scan streams r to the daemon and classifies the reply. Transport failures
// and timeouts are reported as ClassError outcomes, never as panics or
// returned errors; the connection is closed on every path. When scanning is
// disabled by configuration, content is reported clean without contacting the
// daemon, with the version marker "disabled".
func (c *Client) Scan(ctx context.Context, r io.Reader) Outcome {
	if !c.enabled {
		c.logger.Info("virus scanning disabled, returning clean result")
		return Outcome{Class: ClassClean, Version: disabledVersion}
	}

	start := time.Now()

	dctx, cancel := context.WithTimeout(ctx, c.scanTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dctx, "tcp", c.addr)
	if err != nil {
		c.logger.Error("scanner dial failed", zap.String("addr", c.addr), zap.Error(err))
		return Outcome{Class: ClassError, Raw: "connect: " + err.Error(), Version: unknownVersion, Duration: time.Since(start)}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.scanTimeout))

	reply, err := c.stream(conn, r)
	if err != nil {
		if isTimeout(err) {
			c.logger.Error("scan timed out", zap.String("addr", c.addr))
			return Outcome{Class: ClassError, Raw: "scan timeout", Version: unknownVersion, Duration: time.Since(start)}
		}
		c.logger.Error("scan stream failed", zap.Error(err))
		return Outcome{Class: ClassError, Raw: err.Error(), Version: unknownVersion, Duration: time.Since(start)}
	}

	out := classify(reply)
	out.Duration = time.Since(start)
	out.Version = c.Version(ctx)
	return out
}

// stream sends the INSTREAM command, the framed chunks and the zero-length
// terminator, then reads the daemon's reply.
func (c *Client) stream(conn net.Conn, r io.Reader) (string, error) {
	if _, err := io.WriteString(conn, cmdInstream); err != nil {
		return "", err
	}

	var prefix [4]byte
	buf := make([]byte, c.chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			binary.BigEndian.PutUint32(prefix[:], uint32(n))
			if _, werr := conn.Write(prefix[:]); werr != nil {
				return "", werr
			}
			if _, werr := conn.Write(buf[:n]); werr != nil {
				return "", werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	// Zero-length frame terminates the stream.
	binary.BigEndian.PutUint32(prefix[:], 0)
	if _, err := conn.Write(prefix[:]); err != nil {
		return "", err
	}

	return readReply(conn)
}

// Ping sends the liveness probe and verifies the PONG reply. A disabled
// scanner is always healthy.
func (c *Client) Ping(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	reply, err := c.probe(ctx, cmdPing)
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return &net.AddrError{Err: "unexpected ping reply: " + reply, Addr: c.addr}
	}
	return nil
}

// Version returns the daemon version string, degrading to "unknown" on any
// failure. Version decoration must never fail a scan.
func (c *Client) Version(ctx context.Context) string {
	reply, err := c.probe(ctx, cmdVersion)
	if err != nil || reply == "" {
		if err != nil {
			c.logger.Warn("scanner version probe failed", zap.Error(err))
		}
		return unknownVersion
	}
	return reply
}

func (c *Client) probe(ctx context.Context, cmd string) (string, error) {
	dctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	conn, err := c.dialer.DialContext(dctx, "tcp", c.addr)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(c.probeTimeout))

	if _, err := io.WriteString(conn, cmd); err != nil {
		return "", err
	}
	return readReply(conn)
}

// readReply reads up to replyBufSize bytes and trims the trailing NUL and
// whitespace ClamAV appends to z-prefixed command replies.
func readReply(conn net.Conn) (string, error) {
	buf := make([]byte, replyBufSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.TrimRight(string(buf[:n]), "\x00")), nil
}

// classify interprets the daemon's textual verdict. Anything that is neither a
// clean nor an infected reply is an error; ambiguity never maps to clean.
func classify(reply string) Outcome {
	switch {
	case strings.HasSuffix(reply, "OK"):
		return Outcome{Class: ClassClean, Raw: reply}
	case strings.Contains(reply, "FOUND"):
		return Outcome{Class: ClassInfected, ThreatName: threatName(reply), Raw: reply}
	default:
		return Outcome{Class: ClassError, Raw: reply}
	}
}

// threatName extracts the signature from a "stream: <NAME> FOUND" reply.
func threatName(reply string) string {
	s := reply
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), " FOUND")
	return strings.TrimSpace(strings.TrimSuffix(s, "FOUND"))
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Package irc implements the connection manager: socket lifecycle, the login
// handshake, keepalive housekeeping and bounded reconnection. It speaks only
// the protocol subset the scraper and publisher need (PASS/NICK/USER, JOIN,
// PRIVMSG, PING/PONG, QUIT).
package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/scenefeed/prebot/config"
	"github.com/scenefeed/prebot/telemetry"
)

// State is the connection lifecycle phase, exposed for logging and metrics.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateReady
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateReady:
		return "ready"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ErrAuthFailed is returned when the server rejects our credentials. It is
// fatal: retrying with the same credentials would loop forever.
var ErrAuthFailed = errors.New("irc: authentication failed")

var zncPassRE = regexp.MustCompile(`(?i)irc\.znc\.in.*?You need to send your password`)

// bouncerPassRE matches a password already in user/network:password form,
// which must be sent verbatim on the secondary credential attempt.
var bouncerPassRE = regexp.MustCompile(`^.+?/.+?:.+`)

// Options tune socket and retry behavior. Zero values take the defaults the
// original deployment used.
type Options struct {
	ConnectTimeout time.Duration // dial timeout, default 30s
	SocketTimeout  time.Duration // per read/write deadline and keepalive window, default 180s
	ConnectRetries int           // extra connect attempts, default 3
	ReconnectDelay time.Duration // delay between failed connect attempts, default 5s
	MaxWriteErrors int           // consecutive write failures that force reconnect, default 3
}

func (o *Options) withDefaults() {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.SocketTimeout <= 0 {
		o.SocketTimeout = 180 * time.Second
	}
	if o.ConnectRetries <= 0 {
		o.ConnectRetries = 3
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.MaxWriteErrors <= 0 {
		o.MaxWriteErrors = 3
	}
}

// Client owns exactly one live socket. It is not safe for concurrent use; the
// process model is one blocking read-classify-persist loop per instance.
type Client struct {
	opts Options

	host string
	port int
	tls  bool

	nick     string
	username string
	realName string
	password string
	channels []config.Channel

	conn   net.Conn
	reader *bufio.Reader
	state  State

	// serverName is the identity the server announced in its welcome reply.
	// Keepalive probes are only trusted when they carry this token.
	serverName string

	lastPing     time.Time
	awaitingPong bool
	pingSentAt   time.Time

	writeErrors int
	loggedIn    bool
}

// NewClient prepares a client for host:port. No I/O happens until Connect.
func NewClient(host string, port int, useTLS bool, opts Options) *Client {
	opts.withDefaults()
	return &Client{opts: opts, host: host, port: port, tls: useTLS, state: StateDisconnected}
}

// State returns the current lifecycle phase.
func (c *Client) State() State { return c.state }

// ServerName returns the identity received during the handshake.
func (c *Client) ServerName() string { return c.serverName }

// Connected reports whether a live socket is held.
func (c *Client) Connected() bool { return c.conn != nil }

// Connect opens the transport connection, retrying up to ConnectRetries extra
// times with a fixed delay. Calling Connect while already connected to the
// same target is a no-op success.
func (c *Client) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	c.state = StateConnecting

	addr := net.JoinHostPort(c.host, fmt.Sprintf("%d", c.port))
	var lastErr error
	for attempt := 0; attempt <= c.opts.ConnectRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.opts.ReconnectDelay):
			}
		}
		conn, err := c.dial(ctx, addr)
		if err != nil {
			lastErr = err
			slog.Warn("irc connect attempt failed",
				slog.String("addr", addr), slog.Int("attempt", attempt+1), slog.Any("err", err))
			continue
		}
		c.conn = conn
		c.reader = bufio.NewReader(conn)
		c.lastPing = time.Now()
		c.awaitingPong = false
		c.writeErrors = 0
		c.loggedIn = false
		telemetry.SetIRCConnected(true)
		slog.Info("irc connected", slog.String("addr", addr), slog.Bool("tls", c.tls))
		return nil
	}
	c.state = StateDisconnected
	return fmt.Errorf("irc: connect %s after %d attempts: %w", addr, c.opts.ConnectRetries+1, lastErr)
}

func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: c.opts.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !c.tls {
		return conn, nil
	}
	// Pre channel servers routinely run self-signed certificates.
	tconn := tls.Client(conn, &tls.Config{ServerName: c.host, InsecureSkipVerify: true}) //nolint:gosec // G402
	if err := tconn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return tconn, nil
}

// Login performs the identity handshake and blocks until the server accepts
// us (numeric 001), answering keepalive probes that arrive mid-handshake. A
// "password required" rejection (numeric 464 or a bouncer prompt) triggers a
// single retry with the secondary user:password credential before failing.
func (c *Client) Login(ctx context.Context, nick, username, realName, password string) error {
	if c.conn == nil {
		return errors.New("irc: login requires a connection")
	}
	if nick == "" || username == "" || realName == "" {
		return errors.New("irc: nick, username and real name must not be empty")
	}
	if c.loggedIn {
		return nil
	}
	c.state = StateAuthenticating
	c.nick, c.username, c.realName, c.password = nick, username, realName, password

	if password != "" {
		if err := c.WriteLine("PASS " + password); err != nil {
			return err
		}
	}
	if err := c.WriteLine("NICK " + nick); err != nil {
		return err
	}
	if err := c.WriteLine("USER " + username + " 0 * :" + realName); err != nil {
		return err
	}

	passRetried := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		raw, err := c.readLine()
		if err != nil {
			return fmt.Errorf("irc: handshake read: %w", err)
		}
		if raw == "" {
			continue
		}
		if token := PingToken(raw); token != "" {
			if err := c.WriteLine("PONG " + token); err != nil {
				return err
			}
			c.lastPing = time.Now()
			continue
		}
		if IsError(raw) {
			return fmt.Errorf("%w: %s", ErrAuthFailed, raw)
		}
		prefix, code, rest, ok := ParseNumeric(raw)
		needPass := ok && code == "464"
		if !needPass && zncPassRE.MatchString(raw) {
			needPass = true
		}
		switch {
		case ok && code == "001":
			c.serverName = prefix
			c.state = StateReady
			c.loggedIn = true
			slog.Info("irc logged in", slog.String("server", c.serverName), slog.String("nick", nick))
			return nil
		case needPass:
			if strings.Contains(strings.ToLower(rest), "invalid password") {
				return fmt.Errorf("%w: invalid password for %s", ErrAuthFailed, c.host)
			}
			if password == "" || passRetried {
				return fmt.Errorf("%w: server requires a password", ErrAuthFailed)
			}
			passRetried = true
			secondary := username + ":" + password
			if bouncerPassRE.MatchString(password) {
				secondary = password
			}
			if err := c.WriteLine("PASS " + secondary); err != nil {
				return err
			}
		}
	}
}

// Join sends one JOIN per channel, each with its optional key. There is no
// acknowledgment wait.
func (c *Client) Join(channels []config.Channel) error {
	c.channels = channels
	for _, ch := range channels {
		line := "JOIN " + ch.Name
		if ch.Key != "" {
			line += " " + ch.Key
		}
		if err := c.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// ReadLine blocks until a full CRLF-terminated line arrives or the socket
// timeout elapses. A timeout is not an error: it returns an empty line so the
// caller can run keepalive housekeeping. The returned line is raw; strip
// control codes before classification.
func (c *Client) ReadLine(ctx context.Context) (string, error) {
	if err := c.Housekeep(ctx); err != nil {
		return "", err
	}
	raw, err := c.readLine()
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", nil
		}
		slog.Warn("irc read failed, reconnecting", slog.Any("err", err))
		if rerr := c.Reconnect(ctx); rerr != nil {
			return "", rerr
		}
		return "", nil
	}
	if token := PingToken(raw); token != "" {
		c.pong(token)
		return "", nil
	}
	if IsPong(raw) {
		c.lastPing = time.Now()
		c.awaitingPong = false
		return "", nil
	}
	return raw, nil
}

// ReadMessage reads until a channel message is decoded or the timeout window
// passes with nothing to classify, in which case ok is false.
func (c *Client) ReadMessage(ctx context.Context) (Message, bool, error) {
	raw, err := c.ReadLine(ctx)
	if err != nil || raw == "" {
		return Message{}, false, err
	}
	msg, ok := ParseMessage(StripControlCodes(raw))
	return msg, ok, nil
}

func (c *Client) readLine() (string, error) {
	if c.conn == nil {
		return "", errors.New("irc: not connected")
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(c.opts.SocketTimeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WriteLine sends one command, appending CRLF. A short or zero write gets one
// immediate retry; after MaxWriteErrors consecutive failures the client forces
// a full reconnect-and-relogin cycle instead of failing silently forever.
func (c *Client) WriteLine(line string) error {
	if c.conn == nil {
		return errors.New("irc: not connected")
	}
	err := c.writeAll(line + "\r\n")
	if err == nil {
		c.writeErrors = 0
		return nil
	}
	// One immediate retry on a partial or failed write.
	if rerr := c.writeAll(line + "\r\n"); rerr == nil {
		c.writeErrors = 0
		return nil
	}
	c.writeErrors++
	slog.Warn("irc write failed", slog.Int("consecutive", c.writeErrors), slog.Any("err", err))
	// No mid-handshake escalation: Login and Reconnect surface their own failures.
	if c.writeErrors >= c.opts.MaxWriteErrors && c.state != StateAuthenticating && c.state != StateReconnecting {
		c.writeErrors = 0
		c.closeConn()
		if rerr := c.Reconnect(context.Background()); rerr != nil {
			return fmt.Errorf("irc: write failed and reconnect failed: %w", rerr)
		}
	}
	return fmt.Errorf("irc: write: %w", err)
}

func (c *Client) writeAll(s string) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.SocketTimeout)); err != nil {
		return err
	}
	for written := 0; written < len(s); {
		n, err := c.conn.Write([]byte(s[written:]))
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("zero-length write")
		}
		written += n
	}
	return nil
}

func (c *Client) pong(token string) {
	if err := c.WriteLine("PONG " + token); err != nil {
		slog.Warn("irc pong failed", slog.Any("err", err))
	}
	if token == c.serverName {
		c.lastPing = time.Now()
	}
}

// Housekeep emits a proactive keepalive probe when the server has been quiet
// for half the socket timeout, and forces a reconnect when a probe answer is
// overdue by the same window.
func (c *Client) Housekeep(ctx context.Context) error {
	if c.conn == nil {
		return nil
	}
	window := c.opts.SocketTimeout / 2
	if c.awaitingPong && time.Since(c.pingSentAt) > window {
		slog.Warn("irc keepalive probe unanswered, reconnecting", slog.Duration("window", window))
		return c.Reconnect(ctx)
	}
	if !c.awaitingPong && time.Since(c.lastPing) > window {
		target := c.serverName
		if target == "" {
			target = c.host
		}
		if err := c.WriteLine("PING " + target); err != nil {
			return nil // WriteLine already escalates on repeated failure
		}
		c.awaitingPong = true
		c.pingSentAt = time.Now()
	}
	return nil
}

// Ping sends an immediate keepalive probe to the given target.
func (c *Client) Ping(target string) error {
	if target == "" {
		target = c.serverName
	}
	if err := c.WriteLine("PING " + target); err != nil {
		return err
	}
	c.awaitingPong = true
	c.pingSentAt = time.Now()
	return nil
}

// Reconnect tears down the socket and re-runs connect, login and channel
// joins with the last known parameters. A login failure after reconnect is
// fatal to the caller.
func (c *Client) Reconnect(ctx context.Context) error {
	c.state = StateReconnecting
	telemetry.IncIRCReconnects()
	telemetry.SetIRCConnected(false)
	c.closeConn()

	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("irc: reconnect: %w", err)
	}
	if err := c.Login(ctx, c.nick, c.username, c.realName, c.password); err != nil {
		return fmt.Errorf("irc: relogin after reconnect: %w", err)
	}
	if len(c.channels) > 0 {
		if err := c.Join(c.channels); err != nil {
			return fmt.Errorf("irc: rejoin after reconnect: %w", err)
		}
	}
	slog.Info("irc reconnected", slog.String("server", c.serverName))
	return nil
}

// Quit sends a QUIT with an optional message and closes the socket.
func (c *Client) Quit(message string) {
	if c.conn != nil {
		line := "QUIT"
		if message != "" {
			line += " :" + message
		}
		_ = c.writeAll(line + "\r\n")
	}
	c.closeConn()
	c.state = StateDisconnected
}

func (c *Client) closeConn() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
		c.reader = nil
	}
	c.loggedIn = false
	telemetry.SetIRCConnected(false)
}

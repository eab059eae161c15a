// Package publish announces pending releases back onto IRC. It polls the
// predb table for rows that were inserted or mutated since their last
// announcement, formats them into decorated single-line messages, and posts
// them to every configured channel.
package publish

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/scenefeed/prebot/config"
	"github.com/scenefeed/prebot/db"
	"github.com/scenefeed/prebot/irc"
	"github.com/scenefeed/prebot/predb"
	"github.com/scenefeed/prebot/telemetry"
)

const (
	// maxLineLen caps the composed announcement to a protocol-safe length.
	maxLineLen = 500

	keepaliveInterval   = 60 * time.Second
	idleNoticeInterval  = 60 * time.Second
	maintenanceInterval = 30 * time.Minute
)

// Labels for the trailing nuke field of an announcement.
var nukeFields = map[predb.NukeStatus]string{
	predb.NukeUnnuked:  "UNNUKED",
	predb.NukeNuked:    "NUKED",
	predb.NukeModnuked: "MODNUKED",
	predb.NukeRenuked:  "RENUKED",
	predb.NukeOldnuke:  "OLDNUKE",
}

// Options tune the publisher cadences and message decoration.
type Options struct {
	ScanDelay   time.Duration // pause between poll cycles
	PostDelay   time.Duration // pause between consecutive announcements
	CleanupDays int           // purge published rows older than this, 0 disables
	PingTarget  string        // keepalive target, defaults to the server identity
	BoxColor    string        // mIRC color code for the field brackets
	InnerColor  string        // mIRC color code for the field values
}

// Publisher drives one posting connection.
type Publisher struct {
	client   *irc.Client
	db       *sql.DB
	channels []config.Channel
	opts     Options

	// Precomposed decoration around each KEY:value field.
	box   string
	inner string
	end   string

	lastActivity time.Time
}

func New(client *irc.Client, dbc *sql.DB, channels []config.Channel, opts Options) *Publisher {
	if opts.ScanDelay <= 0 {
		opts.ScanDelay = 5 * time.Second
	}
	if opts.PostDelay <= 0 {
		opts.PostDelay = time.Second
	}
	p := &Publisher{client: client, db: dbc, channels: channels, opts: opts}
	if opts.BoxColor == "" {
		p.box = "["
		p.end = "] "
	} else {
		p.box = "\x03" + opts.BoxColor + "[\x0f"
		p.end = "\x0f\x03" + opts.BoxColor + "]\x0f "
	}
	if opts.InnerColor == "" {
		p.inner = " "
	} else {
		p.inner = "\x03" + opts.InnerColor + " "
	}
	return p
}

// pending is one row waiting for announcement, joined with its group name.
type pending struct {
	id        int64
	title     string
	source    string
	category  string
	size      string
	files     string
	filename  string
	reason    string
	groupName string
	requestID int64
	nuke      predb.NukeStatus
	state     predb.PublishState
	predate   time.Time
}

// Run polls until the context is canceled. The keepalive and maintenance
// cadences run on their own timers so a burst of pending work never starves
// them.
func (p *Publisher) Run(ctx context.Context) error {
	scan := time.NewTicker(p.opts.ScanDelay)
	defer scan.Stop()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()
	maintenance := time.NewTicker(maintenanceInterval)
	defer maintenance.Stop()

	p.lastActivity = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-keepalive.C:
			target := p.opts.PingTarget
			if target == "" {
				target = p.client.ServerName()
			}
			if err := p.client.Ping(target); err != nil {
				slog.Warn("publisher keepalive failed", slog.Any("err", err))
			}
		case <-maintenance.C:
			p.housekeep(ctx)
		case <-scan.C:
			telemetry.TimeFunc(telemetry.PublishDuration, func() {
				p.scanOnce(ctx)
			})
		}
	}
}

// scanOnce announces every pending row, oldest first. A failed channel write
// leaves the row pending, forces a reconnect, and defers the rest of the
// backlog to the next tick.
func (p *Publisher) scanOnce(ctx context.Context) {
	rows, err := p.pendingRows(ctx)
	if err != nil {
		slog.Error("pending scan failed", slog.Any("err", err))
		return
	}
	telemetry.SetPendingDepth(len(rows))

	if len(rows) == 0 {
		if time.Since(p.lastActivity) > idleNoticeInterval {
			p.lastActivity = time.Now()
			notice := "INFO: [" + time.Now().UTC().Format("2006-01-02 15:04:05") +
				" This message is to confirm I am still active.]"
			for _, ch := range p.channels {
				if err := p.client.WriteLine("PRIVMSG " + ch.Name + " :" + notice); err != nil {
					slog.Warn("idle notice failed", slog.String("channel", ch.Name), slog.Any("err", err))
					return
				}
			}
		}
		return
	}

	p.lastActivity = time.Now()
	for _, pre := range rows {
		if ctx.Err() != nil {
			return
		}
		if err := p.announce(p.formatMessage(&pre)); err != nil {
			telemetry.IncCounter(telemetry.PublishesFailed)
			slog.Warn("announce failed, reconnecting",
				slog.String("title", pre.title), slog.Any("err", err))
			if rerr := p.client.Reconnect(ctx); rerr != nil {
				slog.Error("publisher reconnect failed", slog.Any("err", rerr))
			}
			return
		}
		if _, err := db.ExecRetry(ctx, p.db, "mark published",
			`UPDATE predb SET shared = $1 WHERE id = $2`, int16(predb.StatePublished), pre.id); err != nil {
			slog.Error("mark published failed", slog.String("title", pre.title), slog.Any("err", err))
			return
		}
		telemetry.IncCounter(telemetry.PublishesSucceeded)
		slog.Info("release announced", slog.String("title", pre.title), slog.String("state", pre.state.String()))

		select {
		case <-ctx.Done():
			return
		case <-time.After(p.opts.PostDelay):
		}
	}
}

func (p *Publisher) pendingRows(ctx context.Context) ([]pending, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT p.id, p.title, COALESCE(p.source, ''), COALESCE(p.category, ''), COALESCE(p.size, ''),
		        COALESCE(p.files, ''), COALESCE(p.filename, ''), COALESCE(p.nukereason, ''),
		        COALESCE(g.name, ''), COALESCE(p.requestid, 0), COALESCE(p.nuked, 0),
		        COALESCE(p.shared, 0), p.predate
		 FROM predb p LEFT JOIN groups g ON g.id = p.groupid
		 WHERE p.shared IN ($1, $2) ORDER BY p.id`,
		int16(predb.StatePendingUpdate), int16(predb.StatePendingNew))
	if err != nil {
		return nil, fmt.Errorf("pending query: %w", err)
	}
	defer rows.Close()

	var out []pending
	for rows.Next() {
		var pre pending
		var nuke, state int16
		if err := rows.Scan(&pre.id, &pre.title, &pre.source, &pre.category, &pre.size,
			&pre.files, &pre.filename, &pre.reason, &pre.groupName, &pre.requestID,
			&nuke, &state, &pre.predate); err != nil {
			return nil, fmt.Errorf("pending scan: %w", err)
		}
		pre.nuke = predb.NukeStatus(nuke)
		pre.state = predb.PublishState(state)
		out = append(out, pre)
	}
	return out, rows.Err()
}

// announce writes one formatted line to every configured channel. Any failed
// write fails the whole announcement so the row stays pending.
func (p *Publisher) announce(line string) error {
	for _, ch := range p.channels {
		if err := p.client.WriteLine("PRIVMSG " + ch.Name + " :" + line); err != nil {
			return fmt.Errorf("channel %s: %w", ch.Name, err)
		}
	}
	return nil
}

// formatMessage renders one pending row into the fixed-field announcement
// line: NEW/UPD/NUK prefix, then DT, TT, SC, CT, RQ, SZ, FL, FN and an
// optional trailing nuke field carrying the reason.
func (p *Publisher) formatMessage(pre *pending) string {
	var prefix string
	switch {
	case pre.nuke != predb.NukeNone:
		prefix = "NUK: "
	case pre.state == predb.StatePendingNew:
		prefix = "NEW: "
	default:
		prefix = "UPD: "
	}

	request := "N/A"
	if pre.requestID > 0 {
		request = strconv.FormatInt(pre.requestID, 10) + ":" + pre.groupName
	}

	s := prefix +
		p.field("DT:", pre.predate.UTC().Format("2006-01-02 15:04:05")) +
		p.field("TT:", pre.title) +
		p.field("SC:", orNA(pre.source)) +
		p.field("CT:", orNA(pre.category)) +
		p.field("RQ:", request) +
		p.field("SZ:", orNA(pre.size)) +
		p.field("FL:", orNA(pre.files)) +
		p.field("FN:", orNA(pre.filename))
	if label, ok := nukeFields[pre.nuke]; ok {
		s += p.field(label+":", pre.reason)
	}
	if len(s) > maxLineLen {
		s = s[:maxLineLen] + p.end
	}
	return s
}

func (p *Publisher) field(key, value string) string {
	return p.box + key + p.inner + value + p.end
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// housekeep purges long-published rows past the retention window and asks the
// datastore for routine table maintenance. Off the hot path.
func (p *Publisher) housekeep(ctx context.Context) {
	if p.opts.CleanupDays > 0 {
		res, err := db.ExecRetry(ctx, p.db, "retention purge",
			`DELETE FROM predb WHERE shared = $1 AND predate < NOW() - make_interval(days => $2)`,
			int16(predb.StatePublished), p.opts.CleanupDays)
		if err != nil {
			slog.Error("retention purge failed", slog.Any("err", err))
		} else if n, err := res.RowsAffected(); err == nil && n > 0 {
			slog.Info("retention purge", slog.Int64("rows", n), slog.Int("days", p.opts.CleanupDays))
		}
	}
	if _, err := p.db.ExecContext(ctx, `VACUUM ANALYZE predb`); err != nil {
		slog.Warn("table maintenance failed", slog.Any("err", err))
	}
}

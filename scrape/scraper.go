package scrape

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scenefeed/prebot/irc"
	"github.com/scenefeed/prebot/predb"
	"github.com/scenefeed/prebot/telemetry"
)

var sbcatRE = regexp.MustCompile(`^(?P<first>.+?)\s+>\s+(?P<last>.+?)$`)

// Extract classifies one channel message and returns the release draft it
// carries. Channel and poster are matched case-insensitively; the poster must
// fuzzy-match a trusted identity for the channel before any pattern runs.
// Messages that match no rule return ok=false.
func Extract(channel, poster, text string) (predb.Draft, bool) {
	channel = strings.ToLower(channel)
	poster = strings.ToLower(poster)

	r, ok := rules[channel]
	if !ok {
		r = defaultRule
		r.source = strings.Replace(channel, "#alt.binaries", "#a.b", 1)
		r.group = strings.TrimPrefix(channel, "#")
	}
	for _, p := range r.patterns {
		identities := p.trusted
		if len(identities) == 0 {
			identities = r.trusted
		}
		if !trusted(poster, identities) {
			continue
		}
		m := namedMatches(p.re, text)
		if m == nil {
			continue
		}
		if m["title"] == "" {
			return predb.Draft{}, false
		}
		return sift(m, &r, p.forceNuke), true
	}
	return predb.Draft{}, false
}

// sift normalizes the named captures of a matched pattern into a draft,
// applying field caps, the time-ago predate, and the size backfill from the
// file descriptor.
func sift(m map[string]string, r *rule, forceNuke bool) predb.Draft {
	d := predb.Draft{
		Title:     m["title"],
		Size:      m["size"],
		Source:    r.source,
		GroupName: r.group,
		Category:  r.category,
		Reason:    truncate(m["reason"], predb.MaxReasonLen),
		Files:     truncate(m["files"], predb.MaxFilesLen),
		Filename:  truncate(m["filename"], predb.MaxFilenameLen),
	}
	d.Digests()

	if v := m["category"]; v != "" {
		d.Category = v
	}
	if v := m["sbcat"]; v != "" {
		if cm := namedMatches(sbcatRE, v); cm != nil {
			d.Category = cm["first"] + "-" + cm["last"]
		}
	}
	if v := m["reqid"]; v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			d.RequestID = id
		}
	}
	if v := m["nuke"]; v != "" {
		d.Nuke = predb.ParseNukeKind(v)
	} else if forceNuke {
		d.Nuke = predb.NukeNuked
	}
	if ago := ParseTimeAgo(m["predago"]); ago > 0 {
		d.PreDate = time.Now().Add(-ago)
	}
	if d.Size == "" && m["files"] != "" {
		d.Size = SizeFromFiles(m["files"])
	}
	return d
}

// Scraper drives one connection: a blocking read-classify-persist loop. In
// title-keyed mode only the source group and request id are tracked, matching
// the lightweight request bots.
type Scraper struct {
	client    *irc.Client
	store     *predb.Store
	titleOnly bool
}

func New(client *irc.Client, store *predb.Store, titleOnly bool) *Scraper {
	return &Scraper{client: client, store: store, titleOnly: titleOnly}
}

// Run reads until the context is canceled or the connection is lost beyond
// recovery. Persistence failures are logged and dropped; the source message
// is not re-queued.
func (s *Scraper) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, ok, err := s.client.ReadMessage(ctx)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		draft, matched := Extract(msg.Channel, msg.Sender, msg.Text)
		if !matched {
			continue
		}
		mctx := telemetry.WithCorrelation(ctx, uuid.NewString())
		if s.titleOnly {
			_, err = s.store.SyncByTitle(mctx, draft.Title, draft.GroupName, draft.RequestID)
		} else {
			_, err = s.store.Sync(mctx, draft)
		}
		if err != nil {
			telemetry.LoggerWithCorr(mctx).Error("release sync failed",
				slog.String("channel", msg.Channel), slog.String("title", draft.Title), slog.Any("err", err))
		}
	}
}

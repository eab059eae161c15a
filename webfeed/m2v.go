package webfeed

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/scenefeed/prebot/predb"
	"github.com/scenefeed/prebot/telemetry"
)

// m2vThrottle is the pause between item page fetches, to stay polite to the
// host.
const m2vThrottle = 500 * time.Millisecond

// m2v.ru serves an RSS feed of items whose linked pages carry the file names.
type m2vFeed struct {
	Channel struct {
		Items []struct {
			Title    string `xml:"title"`
			Link     string `xml:"link"`
			Category string `xml:"category"`
			PubDate  string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

var (
	m2vLinksRE = regexp.MustCompile(`(?is)<DIV\s+class=links>(.+?)</DIV>`)
	m2vNameRE  = regexp.MustCompile(`(?is)<b>\s*(.+?)\s*,`)
	m2vMetaRE  = regexp.MustCompile(`(?i)\.(nfo|sfv|mu3|txt|jpe?g|png|gif)$`)
	m2vExtRE   = regexp.MustCompile(`\..{0,5}$`)
)

// m2vFilename picks the release file name out of an item page: the first name
// in a links block that isn't a metadata file, falling back to a metadata name
// when that's all the page lists. Empty when nothing matches.
func m2vFilename(page []byte) string {
	var alternate string
	for _, div := range m2vLinksRE.FindAllSubmatch(page, -1) {
		m := m2vNameRE.FindSubmatch(div[1])
		if m == nil {
			continue
		}
		name := string(m[1])
		if m2vMetaRE.MatchString(name) {
			alternate = name
			continue
		}
		return name
	}
	return alternate
}

// pollM2V walks the m2v RSS feed and backfills file names. Items already
// stored with a filename are skipped before paying for the page fetch.
func (f *Feeds) pollM2V(ctx context.Context) error {
	body, err := f.fetch(ctx, f.m2vURL)
	if err != nil {
		return err
	}
	var feed m2vFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return fmt.Errorf("decode m2v: %w", err)
	}
	synced := 0
	for _, item := range feed.Channel.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		title := strings.TrimSpace(item.Title)
		// The feed interleaves site-notice items named after the host.
		if title == "" || title == "m2v.ru" {
			continue
		}
		known, err := f.store.HasFilename(ctx, title)
		if err != nil {
			return err
		}
		if known {
			continue
		}
		page, err := f.fetch(ctx, item.Link)
		if err != nil {
			slog.Warn("m2v item page fetch failed", slog.String("title", title), slog.Any("err", err))
			continue
		}
		name := m2vFilename(page)
		if name == "" {
			slog.Debug("m2v item without a file name", slog.String("title", title))
			continue
		}
		d := predb.Draft{
			Title:    title,
			Category: strings.TrimSpace(item.Category),
			Filename: m2vExtRE.ReplaceAllString(name, ""),
			Source:   "m2v.ru",
		}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
			if t, err := time.Parse(layout, item.PubDate); err == nil {
				d.PreDate = t
				break
			}
		}
		outcome, err := f.store.Sync(ctx, d)
		if err != nil {
			slog.Error("m2v item sync failed", slog.String("title", title), slog.Any("err", err))
			continue
		}
		if outcome != predb.Ignored {
			synced++
			telemetry.IncCounter(telemetry.WebItemsFetched)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m2vThrottle):
		}
	}
	slog.Info("feed polled", slog.String("source", "m2v"),
		slog.Int("items", len(feed.Channel.Items)), slog.Int("synced", synced))
	return nil
}

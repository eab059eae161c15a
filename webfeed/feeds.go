// Package webfeed polls public release feeds (srrdb RSS, xrel JSON, the
// m2v.ru filename feed) and folds the items into the release table through
// the same synchronizer the IRC scrapers use.
package webfeed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/scenefeed/prebot/predb"
	"github.com/scenefeed/prebot/telemetry"
)

const (
	fetchTimeout = 15 * time.Second

	// Some of the feed hosts sit behind dated TLS setups and block obvious
	// bot user agents.
	userAgent = "Mozilla/5.0 (iPad; U; CPU OS 3_2 like Mac OS X; en-us) AppleWebKit/531.21.10 (KHTML, like Gecko) Version/4.0.4 Mobile/7B334b Safari/531.21.10"

	// minTitleLen drops junk items with nothing resembling a release name.
	minTitleLen = 15

	// maxItemAge drops stale feed backfill.
	maxItemAge = 365 * 24 * time.Hour
)

// Options select which feeds to poll and how long one full round takes. The
// per-source pause is SleepTime divided by the number of active sources.
type Options struct {
	SrrDB     bool
	Xrel      bool
	XrelP2P   bool
	M2V       bool
	SleepTime time.Duration
}

// Feeds polls the enabled sources round-robin.
type Feeds struct {
	store  *predb.Store
	client *http.Client
	opts   Options

	// Endpoint overrides for tests.
	srrURL     string
	xrelURL    string
	xrelP2PURL string
	m2vURL     string
}

func New(store *predb.Store, opts Options) *Feeds {
	if opts.SleepTime <= 0 {
		opts.SleepTime = 10 * time.Minute
	}
	return &Feeds{
		store: store,
		opts:  opts,
		client: &http.Client{
			Timeout: fetchTimeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // G402
			},
		},
		srrURL:     "https://www.srrdb.com/feed/srrs",
		xrelURL:    "https://api.xrel.to/v2/release/latest.json?per_page=100",
		xrelP2PURL: "https://api.xrel.to/v2/p2p/releases.json?per_page=100",
		m2vURL:     "https://m2v.ru/index.php?act=rss",
	}
}

// source is one pollable feed. The plain list feeds share pollParsed; m2v
// needs its own poll because every item costs an extra page fetch.
type source struct {
	name string
	poll func(context.Context) error
}

func (f *Feeds) sources() []source {
	var out []source
	if f.opts.SrrDB {
		out = append(out, source{"srrdb", func(ctx context.Context) error {
			return f.pollParsed(ctx, "srrdb", f.srrURL, parseSrrDB)
		}})
	}
	if f.opts.Xrel {
		out = append(out, source{"xrel", func(ctx context.Context) error {
			return f.pollParsed(ctx, "xrel", f.xrelURL, parseXrel)
		}})
	}
	if f.opts.XrelP2P {
		out = append(out, source{"xrelp2p", func(ctx context.Context) error {
			return f.pollParsed(ctx, "xrelp2p", f.xrelP2PURL, parseXrelP2P)
		}})
	}
	if f.opts.M2V {
		out = append(out, source{"m2v", f.pollM2V})
	}
	return out
}

// Run polls the enabled feeds until the context is canceled. A fetch or
// decode failure skips that source for the round; it is not fatal.
func (f *Feeds) Run(ctx context.Context) error {
	srcs := f.sources()
	if len(srcs) == 0 {
		slog.Warn("no web feeds enabled, idling")
		<-ctx.Done()
		return ctx.Err()
	}
	pause := f.opts.SleepTime / time.Duration(len(srcs))
	for {
		for _, src := range srcs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := src.poll(ctx); err != nil {
				slog.Warn("feed poll failed", slog.String("source", src.name), slog.Any("err", err))
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}
	}
}

func (f *Feeds) pollParsed(ctx context.Context, name, url string, parse func([]byte) ([]predb.Draft, error)) error {
	body, err := f.fetch(ctx, url)
	if err != nil {
		return err
	}
	drafts, err := parse(body)
	if err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	fetched := 0
	for _, d := range drafts {
		d.Source = name
		if !acceptable(&d) {
			continue
		}
		outcome, err := f.store.Sync(ctx, d)
		if err != nil {
			slog.Error("feed item sync failed",
				slog.String("source", name), slog.String("title", d.Title), slog.Any("err", err))
			continue
		}
		if outcome != predb.Ignored {
			fetched++
			telemetry.IncCounter(telemetry.WebItemsFetched)
		}
	}
	slog.Info("feed polled", slog.String("source", name), slog.Int("items", len(drafts)), slog.Int("synced", fetched))
	return nil
}

func (f *Feeds) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// acceptable filters out junk items and normalizes the title in place.
func acceptable(d *predb.Draft) bool {
	d.Title = strings.NewReplacer("\r", "", "\n", "").Replace(strings.TrimSpace(d.Title))
	if len(d.Title) < minTitleLen {
		return false
	}
	if d.PreDate.IsZero() || time.Since(d.PreDate) > maxItemAge {
		return false
	}
	return true
}

// srrdb ships a plain RSS 2.0 feed.
type srrFeed struct {
	Channel struct {
		Items []struct {
			Title   string `xml:"title"`
			PubDate string `xml:"pubDate"`
		} `xml:"item"`
	} `xml:"channel"`
}

func parseSrrDB(data []byte) ([]predb.Draft, error) {
	var feed srrFeed
	if err := xml.Unmarshal(data, &feed); err != nil {
		return nil, err
	}
	out := make([]predb.Draft, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		d := predb.Draft{Title: item.Title}
		for _, layout := range []string{time.RFC1123Z, time.RFC1123} {
			if t, err := time.Parse(layout, item.PubDate); err == nil {
				d.PreDate = t
				break
			}
		}
		out = append(out, d)
	}
	return out, nil
}

type xrelList struct {
	List []struct {
		Dirname string `json:"dirname"`
		Time    int64  `json:"time"`
		PubTime int64  `json:"pub_time"`
		Size    *struct {
			Number int64  `json:"number"`
			Unit   string `json:"unit"`
		} `json:"size"`
		SizeMB   int64 `json:"size_mb"`
		Category *struct {
			MetaCat string `json:"meta_cat"`
			SubCat  string `json:"sub_cat"`
		} `json:"category"`
	} `json:"list"`
}

func parseXrel(data []byte) ([]predb.Draft, error) {
	var feed xrelList
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, err
	}
	out := make([]predb.Draft, 0, len(feed.List))
	for _, item := range feed.List {
		d := predb.Draft{Title: item.Dirname}
		if item.Time > 0 {
			d.PreDate = time.Unix(item.Time, 0)
		}
		if item.Size != nil {
			d.Size = fmt.Sprintf("%d%s", item.Size.Number, strings.TrimSpace(item.Size.Unit))
		}
		out = append(out, d)
	}
	return out, nil
}

func parseXrelP2P(data []byte) ([]predb.Draft, error) {
	var feed xrelList
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, err
	}
	out := make([]predb.Draft, 0, len(feed.List))
	for _, item := range feed.List {
		d := predb.Draft{Title: item.Dirname}
		if item.PubTime > 0 {
			d.PreDate = time.Unix(item.PubTime, 0)
		}
		if item.SizeMB > 0 {
			d.Size = fmt.Sprintf("%dMB", item.SizeMB)
		}
		if item.Category != nil {
			d.Category = strings.TrimSpace(upperFirst(item.Category.MetaCat) + " " + item.Category.SubCat)
		}
		out = append(out, d)
	}
	return out, nil
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

package webfeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/scenefeed/prebot/predb"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>srrdb.com releases</title>
    <item>
      <title>Formula1.2014.Malaysian.Grand.Prix.720p.HDTV.x264-W4F</title>
      <pubDate>Sun, 30 Mar 2014 12:00:00 +0000</pubDate>
    </item>
    <item>
      <title>short</title>
      <pubDate>Sun, 30 Mar 2014 13:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const sampleXrel = `{"list":[
  {"dirname":"A.Certain.Justice.2014.FRENCH.BDRip.x264-COUAC","time":1396180800,"size":{"number":700,"unit":"MB"}},
  {"dirname":"No.Size.Release.2014.x264-GRP","time":1396180801}
]}`

const sampleXrelP2P = `{"list":[
  {"dirname":"Some.Show.S01E01.720p.WEB-GRP","pub_time":1396180800,"size_mb":350,
   "category":{"meta_cat":"tv","sub_cat":"HD"}}
]}`

func TestParseSrrDB(t *testing.T) {
	drafts, err := parseSrrDB([]byte(sampleRSS))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("items = %d, want 2", len(drafts))
	}
	if drafts[0].Title != "Formula1.2014.Malaysian.Grand.Prix.720p.HDTV.x264-W4F" {
		t.Errorf("title = %q", drafts[0].Title)
	}
	want := time.Date(2014, 3, 30, 12, 0, 0, 0, time.UTC)
	if !drafts[0].PreDate.Equal(want) {
		t.Errorf("predate = %v, want %v", drafts[0].PreDate, want)
	}
}

func TestParseXrel(t *testing.T) {
	drafts, err := parseXrel([]byte(sampleXrel))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(drafts) != 2 {
		t.Fatalf("items = %d, want 2", len(drafts))
	}
	if drafts[0].Size != "700MB" {
		t.Errorf("size = %q", drafts[0].Size)
	}
	if drafts[1].Size != "" {
		t.Errorf("size without size object = %q", drafts[1].Size)
	}
	if drafts[0].PreDate.Unix() != 1396180800 {
		t.Errorf("predate = %v", drafts[0].PreDate)
	}
}

func TestParseXrelP2P(t *testing.T) {
	drafts, err := parseXrelP2P([]byte(sampleXrelP2P))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(drafts) != 1 {
		t.Fatalf("items = %d, want 1", len(drafts))
	}
	d := drafts[0]
	if d.Size != "350MB" {
		t.Errorf("size = %q", d.Size)
	}
	if d.Category != "Tv HD" {
		t.Errorf("category = %q", d.Category)
	}
}

func TestAcceptable(t *testing.T) {
	fresh := time.Now().Add(-time.Hour)
	tests := []struct {
		name string
		d    predb.Draft
		want bool
	}{
		{"ok", predb.Draft{Title: "A.Long.Enough.Release-GRP", PreDate: fresh}, true},
		{"short title", predb.Draft{Title: "short", PreDate: fresh}, false},
		{"no date", predb.Draft{Title: "A.Long.Enough.Release-GRP"}, false},
		{"stale", predb.Draft{Title: "A.Long.Enough.Release-GRP", PreDate: time.Now().Add(-2 * 365 * 24 * time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := acceptable(&tt.d); got != tt.want {
				t.Errorf("acceptable = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAcceptableStripsLineBreaks(t *testing.T) {
	d := predb.Draft{Title: "A.Long\r\n.Enough.Release-GRP", PreDate: time.Now()}
	if !acceptable(&d) {
		t.Fatal("rejected")
	}
	if d.Title != "A.Long.Enough.Release-GRP" {
		t.Errorf("title = %q", d.Title)
	}
}

func TestFetchSetsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(nil, Options{SrrDB: true})
	body, err := f.fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body = %q", body)
	}
	if gotUA != userAgent || gotLang != "en" {
		t.Errorf("headers = %q %q", gotUA, gotLang)
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(nil, Options{Xrel: true})
	if _, err := f.fetch(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error on 403")
	}
}

func TestSourcesRespectToggles(t *testing.T) {
	f := New(nil, Options{SrrDB: true, XrelP2P: true, M2V: true})
	srcs := f.sources()
	if len(srcs) != 3 || srcs[0].name != "srrdb" || srcs[1].name != "xrelp2p" || srcs[2].name != "m2v" {
		names := make([]string, len(srcs))
		for i, s := range srcs {
			names[i] = s.name
		}
		t.Errorf("sources = %v", names)
	}
}

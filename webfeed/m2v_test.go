package webfeed

import (
	"encoding/xml"
	"testing"
)

const sampleM2VRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<item>
  <title>Some.Movie.2008.DVDRip.XviD-GRP</title>
  <link>http://m2v.ru/?p=1234</link>
  <category>Movies</category>
  <pubDate>Sat, 29 Aug 2026 12:00:00 +0000</pubDate>
</item>
<item>
  <title>m2v.ru</title>
  <link>http://m2v.ru/</link>
  <category></category>
  <pubDate>Sat, 29 Aug 2026 11:00:00 +0000</pubDate>
</item>
</channel>
</rss>`

func TestParseM2VFeed(t *testing.T) {
	var feed m2vFeed
	if err := xml.Unmarshal([]byte(sampleM2VRSS), &feed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(feed.Channel.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(feed.Channel.Items))
	}
	first := feed.Channel.Items[0]
	if first.Title != "Some.Movie.2008.DVDRip.XviD-GRP" {
		t.Errorf("Title = %q", first.Title)
	}
	if first.Link != "http://m2v.ru/?p=1234" {
		t.Errorf("Link = %q", first.Link)
	}
	if first.Category != "Movies" {
		t.Errorf("Category = %q", first.Category)
	}
}

func TestM2VFilename(t *testing.T) {
	cases := []struct {
		name string
		page string
		want string
	}{
		{
			"release file preferred over metadata",
			`<DIV class=links><b>grp-movie.nfo, <font color="silver">size: 4 KB</font></DIV>
			 <DIV class=links><b>b8zkcy01.zip, <font color="silver">size: <font color="white">4,77 MB</font></DIV>`,
			"b8zkcy01.zip",
		},
		{
			"metadata name used when nothing else listed",
			`<DIV class=links><b>grp-movie.nfo, size: 4 KB</DIV>`,
			"grp-movie.nfo",
		},
		{
			"first release name wins",
			`<DIV class=links><b>part01.rar, size</DIV><DIV class=links><b>part02.rar, size</DIV>`,
			"part01.rar",
		},
		{
			"no links block",
			`<p>nothing here</p>`,
			"",
		},
		{
			"links block without a name",
			`<DIV class=links>size only</DIV>`,
			"",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := m2vFilename([]byte(c.page)); got != c.want {
				t.Errorf("m2vFilename = %q, want %q", got, c.want)
			}
		})
	}
}

func TestM2VExtensionStrip(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"b8zkcy01.zip", "b8zkcy01"},
		{"grp-movie.nfo", "grp-movie"},
		// Dotted release names keep everything when the tail is too long to
		// be an extension.
		{"Some.Movie.2008.DVDRip.XviD-LONGGRP", "Some.Movie.2008.DVDRip.XviD-LONGGRP"},
		{"noextension", "noextension"},
	}
	for _, c := range cases {
		if got := m2vExtRE.ReplaceAllString(c.in, ""); got != c.want {
			t.Errorf("strip(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

package scrape

import "regexp"

// pattern is one message shape a trusted bot emits. The first pattern that
// matches wins, so "new release" shapes come before "status change" shapes.
type pattern struct {
	re *regexp.Regexp

	// trusted overrides the rule-level identities when set. Some channels
	// have different bots for announces and for nuke notices.
	trusted []string

	// forceNuke marks shapes that carry a nuke without a nuke token, like
	// the VCID "added nuke info" notices.
	forceNuke bool
}

// rule binds one channel to its trusted posters and message shapes plus the
// source tag, usenet group and category stamped on every extracted draft.
type rule struct {
	trusted  []string
	source   string
	group    string
	category string
	patterns []pattern
}

// Shared shapes. Most request-channel bots use the same bracketed nuke
// notice, so it is declared once.
var (
	reqNukeRE = regexp.MustCompile(`(?i)\[(?P<nuke>(MOD|OLD|RE|UN)?NUKE)\]\s+ReqId:\[(?P<reqid>\d+)\]\s+\[(?P<title>.+?)\]\s+Reason:\[(?P<reason>.+?)\]`)

	sendNZBRE = regexp.MustCompile(`(?i)A\s+new\s+NZB\s+has\s+been\s+added:\s+(?P<title>.+?)\s+.+\s+(?P<filename>.+?)\s+(?P<files>\d+x\d+[KMGTP]?B)\s+-\s+To.+?file:\s+-sendnzb\s+(?P<reqid>\d+)\s*`)

	vcidNukeRE = regexp.MustCompile(`(?i)added\s+(nuke|reason)\s+info\s+for:\s+(?P<title>.+?)\]\[VCID:\s+(?P<reqid>\d+)\]\[Value:\s+(?P<reason>.+?)\]`)
)

// rules maps a lowercased channel name to its classification rule. Channels
// not listed here fall through to the generic announcement rule.
var rules = map[string]rule{
	"#pre": {
		trusted: []string{"pr3"},
		source:  "#pre@corrupt",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)^PRE:\s+\[(?P<category>.+?)\]\s+(?P<title>.+)$`)},
			{re: regexp.MustCompile(`(?i)(?P<nuke>(MOD|OLD|RE|UN)?NUKE):\s+(?P<title>.+?)\s+\[(?P<reason>.+?)\]`)},
		},
	},
	"#alt.binaries.inner-sanctum": {
		trusted: []string{"sanctum"},
		source:  "#a.b.inner-sanctum",
		group:   "alt.binaries.inner-sanctum",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)FILLED\]\s+\[\s+(?P<reqid>\d+)\s+\|\s+(?P<title>.+?)\s+\|\s+(?P<files>\d+x\d+)\s+\|\s+(?P<category>.+?)\s+\|\s+.+?\s+\]\s+\[\s+Pred\s+(?P<predago>.+?)\s+ago\s+\]`)},
		},
	},
	"#alt.binaries.erotica": {
		trusted:  []string{"ginger", "g1nger"},
		source:   "#a.b.erotica",
		group:    "alt.binaries.erotica",
		category: "XXX",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)ReqId:\[(?P<reqid>\d+)\]\s+\[.+?\]\s+\[FULL\s+(?P<files>\d+x\d+[KMGTP]?B)\s+(?P<title>.+?)\].+?Filenames:\[(?P<filename>.+?)\].+?Size:\[(?P<size>.+?)\](.+?\[Pred\s+(?P<predago>.+?)\s+ago\])?(.+?\[(?P<nuke>(MOD|OLD|RE|UN)?NUKE)D\])?`)},
			{re: reqNukeRE},
		},
	},
	"#alt.binaries.flac": {
		trusted:  []string{"abflac"},
		source:   "#a.b.flac",
		group:    "alt.binaries.sounds.flac",
		category: "FLAC",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)Request\s+Filled!\s+ReqId:\[(?P<reqid>\d+)\]\s+\[FULL\s+(?P<files>\d+x\d+[KMGTP]?B)\s+(?P<title>.+?)\].*?(\[Pred\s+(?P<predago>.+?)\s+ago\])?`)},
			{re: reqNukeRE},
		},
	},
	"#alt.binaries.moovee": {
		trusted:  []string{"abking"},
		source:   "#a.b.moovee",
		group:    "alt.binaries.moovee",
		category: "Movies",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)ReqId:\[(?P<reqid>\d+)\]\s+\[FULL\s+(?P<files>\d+x\d+[MGPTK]?B)\s+(?P<title>.+?)\]\s+.*?(\[Pred\s+(?P<predago>.+?)\s+ago\])?`)},
			{re: reqNukeRE},
		},
	},
	"#alt.binaries.teevee": {
		trusted:  []string{"abgod"},
		source:   "#a.b.teevee",
		group:    "alt.binaries.teevee",
		category: "TV",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)Request\s+Filled!\s+ReqId:\[(?P<reqid>\d+)\]\s+\[FULL\s+(?P<files>\d+x\d+[KMGPT]?B)\s+(?P<title>.+?)\].*?(\[Pred\s+(?P<predago>.+?)\s+ago\])?`)},
			{re: reqNukeRE},
		},
	},
	"#alt.binaries.foreign": {
		trusted: []string{"abqueen"},
		source:  "#a.b.foreign",
		group:   "alt.binaries.mom",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)ReqId:\[(?P<reqid>\d+)\]\s+\[(?P<category>.+?)\]\s+\[FULL\s+(?P<files>\d+x\d+[MGPTK]?B)\s+(?P<title>.+?)\]\s+.*?(\[Pred\s+(?P<predago>.+?)\s+ago\])?`)},
			{re: reqNukeRE},
		},
	},
	"#alt.binaries.console.ps3": {
		trusted:  []string{"binarybot"},
		source:   "#a.b.console.ps3",
		group:    "alt.binaries.console.ps3",
		category: "PS3",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)\s+FULL\s+\d+\s+(?P<title>.+?)\s+.+\s+(?P<filename>.+?)\s+(?P<files>\d+x\d+[KMGTP]?B)\s+.+?\]\[ReqID:\s+(?P<reqid>\d+)\]\[`)},
		},
	},
	"#alt.binaries.games.nintendods": {
		trusted:  []string{"binarybot"},
		source:   "#a.b.games.nintendods",
		group:    "alt.binaries.games.nintendods",
		category: "NDS",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)NEW\s+\[NDS\]\s+PRE:\s+(?P<title>.+)`)},
		},
	},
	"#alt.binaries.games.wii": {
		trusted:  []string{"binarybot", "googlebot"},
		source:   "#a.b.games.wii",
		group:    "alt.binaries.games.wii",
		category: "WII",
		patterns: []pattern{
			{re: sendNZBRE, trusted: []string{"googlebot"}},
			{re: vcidNukeRE, trusted: []string{"binarybot"}, forceNuke: true},
		},
	},
	"#alt.binaries.games.xbox360": {
		trusted:  []string{"binarybot", "googlebot"},
		source:   "#a.b.games.xbox360",
		group:    "alt.binaries.games.xbox360",
		category: "XBOX360",
		patterns: []pattern{
			{re: sendNZBRE, trusted: []string{"googlebot"}},
			{re: vcidNukeRE, trusted: []string{"binarybot"}, forceNuke: true},
		},
	},
	"#alt.binaries.sony.psp": {
		trusted:  []string{"googlebot"},
		source:   "#a.b.sony.psp",
		group:    "alt.binaries.sony.psp",
		category: "PSP",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)A NZB is available:\s(?P<title>.+?)\s+.+\s+(?P<filename>.+?)\s+(?P<files>\d+x\d+[KMGPT]?B)\s+-.+?file:\s+-sendnzb\s+(?P<reqid>\d+)\s*`)},
		},
	},
	"#scnzb": {
		trusted: []string{"nzbs"},
		source:  "#scnzb",
		group:   "alt.binaries.boneless",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)\[Complete\]\[(?P<reqid>\d+)\]\s*(?P<title>.+?)\s+NZB:`)},
		},
	},
	"#tvnzb": {
		trusted: []string{"tweetie"},
		source:  "#tvnzb",
		patterns: []pattern{
			{re: regexp.MustCompile(`(?i)\[SBINDEX\]\s+(?P<title>.+?)\s+::\s+(?P<sbcat>.+?)\s+::\s+(?P<size>.+?)\s+::\s+Aired`)},
		},
	},
}

// defaultRule matches the generic request-fill announcement that alt-bin bots
// post in any binaries channel not covered by a specific rule. Source and
// group are derived from the channel name at dispatch time.
var defaultRule = rule{
	trusted: []string{"alt-bin"},
	patterns: []pattern{
		{re: regexp.MustCompile(`(?i)Req.+?Id.*?<.*?(?P<reqid>\d+).*?>.*?Request.*?<\d{0,2}(?P<title>.+?)(\s+\*Pars\s+Included\*\d{0,2}>|\d{0,2}>)\s+Files<(?P<files>\d+)>`)},
	},
}

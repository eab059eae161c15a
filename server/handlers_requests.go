package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/scenefeed/prebot/telemetry"
)

// maxBatchLookups bounds how many lookups a single POST may request.
const maxBatchLookups = 100

// requestLookup is one request-ID query. Ident is echoed back verbatim so
// callers can match responses to their own identifiers.
type requestLookup struct {
	ReqID int64  `json:"reqid"`
	Group string `json:"group"`
	Ident int64  `json:"ident"`
}

// requestHit is a resolved lookup ready for XML rendering.
type requestHit struct {
	Name  string
	Group string
	ReqID int64
	Ident int64
}

// HandleRequests resolves request IDs to release names and renders the result
// as XML. GET takes a single reqid+group query pair; POST takes a JSON array
// of lookups. Misses are omitted from the response rather than erroring.
func (h *Handlers) HandleRequests(w http.ResponseWriter, r *http.Request) {
	var lookups []requestLookup

	switch r.Method {
	case http.MethodGet:
		reqidParam := r.URL.Query().Get("reqid")
		group := r.URL.Query().Get("group")
		if reqidParam == "" || group == "" {
			http.Error(w, "reqid and group are required", http.StatusBadRequest)
			return
		}
		reqid, err := strconv.ParseInt(reqidParam, 10, 64)
		if err != nil {
			http.Error(w, "invalid reqid", http.StatusBadRequest)
			return
		}
		lookups = []requestLookup{{ReqID: reqid, Group: group}}
	case http.MethodPost:
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&lookups); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if len(lookups) > maxBatchLookups {
			http.Error(w, fmt.Sprintf("too many lookups (max %d)", maxBatchLookups), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	hits := make([]requestHit, 0, len(lookups))
	for _, l := range lookups {
		if l.ReqID == 0 || l.Group == "" {
			continue
		}
		var title string
		err := h.db.QueryRowContext(ctx, `
			SELECT p.title FROM predb p
			JOIN groups g ON g.id = p.groupid
			WHERE p.requestid = $1 AND g.name = $2
			LIMIT 1
		`, l.ReqID, l.Group).Scan(&title)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			telemetry.LoggerWithCorr(ctx).Error("request lookup failed", "reqid", l.ReqID, "group", l.Group, "err", err)
			http.Error(w, "lookup failed", http.StatusInternalServerError)
			return
		}
		hits = append(hits, requestHit{Name: title, Group: l.Group, ReqID: l.ReqID, Ident: l.Ident})
	}

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<requests>\n")
	for _, hit := range hits {
		fmt.Fprintf(&b, "    <request name=\"%s\" group=\"%s\" reqid=\"%d\" ident=\"%d\"/>\n",
			xmlEscape(sanitizeXMLText(hit.Name)), xmlEscape(hit.Group), hit.ReqID, hit.Ident)
	}
	b.WriteString("</requests>\n")
	_, _ = w.Write([]byte(b.String()))
}

// sanitizeXMLText replaces runes that are not legal in XML 1.0 character
// data with '.'. Release titles occasionally carry stray control codes
// picked up from IRC.
func sanitizeXMLText(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == 0x09 || r == 0x0a || r == 0x0d:
			return r
		case r >= 0x20 && r <= 0xd7ff:
			return r
		case r >= 0xe000 && r <= 0xfffd:
			return r
		default:
			return '.'
		}
	}, s)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}

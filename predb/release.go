// Package predb owns the Release entity and the dedupe-key synchronizer every
// scraper feeds. A Release is keyed by a digest of its title (or by the exact
// title in the lightweight request-tracking flow) and carries a publish state
// that tells the announcer whether it still needs to go out.
package predb

import (
	"crypto/md5"  //nolint:gosec // G501: dedupe key, not a security boundary
	"crypto/sha1" //nolint:gosec // G505: legacy digest kept for external consumers
	"encoding/hex"
	"strings"
	"time"
)

// Field caps applied before anything reaches the database.
const (
	MaxReasonLen   = 255
	MaxFilesLen    = 50
	MaxFilenameLen = 255
)

// NukeStatus is the retraction state of a release.
type NukeStatus int16

const (
	NukeNone NukeStatus = iota
	NukeUnnuked
	NukeNuked
	NukeModnuked
	NukeRenuked
	NukeOldnuke
)

// ParseNukeKind maps a wire token (NUKE, UNNUKE, MODNUKE, RENUKE, OLDNUKE)
// onto a status. Unknown tokens map to NukeNone.
func ParseNukeKind(token string) NukeStatus {
	switch strings.ToUpper(token) {
	case "NUKE":
		return NukeNuked
	case "UNNUKE":
		return NukeUnnuked
	case "MODNUKE":
		return NukeModnuked
	case "RENUKE":
		return NukeRenuked
	case "OLDNUKE":
		return NukeOldnuke
	}
	return NukeNone
}

// Label returns the decorated announce token for a status, empty for none.
func (n NukeStatus) Label() string {
	switch n {
	case NukeNuked:
		return "NUKED"
	case NukeUnnuked:
		return "UNNUKED"
	case NukeModnuked:
		return "MODNUKE"
	case NukeRenuked:
		return "RENUKED"
	case NukeOldnuke:
		return "OLDNUKE"
	}
	return ""
}

// PublishState tracks whether a release still needs to be announced. The only
// legal transitions are pending-new -> published and
// published -> pending-update -> published.
type PublishState int16

const (
	StatePendingNew    PublishState = 0
	StatePublished     PublishState = 1
	StatePendingUpdate PublishState = -1
)

func (s PublishState) String() string {
	switch s {
	case StatePendingNew:
		return "pending-new"
	case StatePublished:
		return "published"
	case StatePendingUpdate:
		return "pending-update"
	default:
		return "unknown"
	}
}

// Draft is one sighting of a release, extracted from a channel message or a
// web feed item. Zero-valued fields are "not seen this time".
type Draft struct {
	Title     string
	MD5       string
	SHA1      string
	Size      string
	Category  string
	Source    string
	GroupName string
	RequestID int64
	Nuke      NukeStatus
	Reason    string
	Files     string
	Filename  string
	PreDate   time.Time
}

// Digests fills MD5 and SHA1 from the title when unset.
func (d *Draft) Digests() {
	if d.Title == "" {
		return
	}
	if d.MD5 == "" {
		sum := md5.Sum([]byte(d.Title)) //nolint:gosec // G401
		d.MD5 = hex.EncodeToString(sum[:])
	}
	if d.SHA1 == "" {
		sum := sha1.Sum([]byte(d.Title)) //nolint:gosec // G401
		d.SHA1 = hex.EncodeToString(sum[:])
	}
}

// Release is the stored row.
type Release struct {
	ID        int64
	Title     string
	MD5       string
	SHA1      string
	Size      string
	Category  string
	Source    string
	GroupID   int64
	RequestID int64
	Nuke      NukeStatus
	Reason    string
	Files     string
	Filename  string
	PreDate   time.Time
	State     PublishState
}

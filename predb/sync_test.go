package predb

import (
	"strings"
	"testing"
	"time"
)

func TestParseNukeKind(t *testing.T) {
	tests := []struct {
		token string
		want  NukeStatus
	}{
		{"NUKE", NukeNuked},
		{"UNNUKE", NukeUnnuked},
		{"MODNUKE", NukeModnuked},
		{"RENUKE", NukeRenuked},
		{"OLDNUKE", NukeOldnuke},
		{"nuke", NukeNuked},
		{"REPACK", NukeNone},
		{"", NukeNone},
	}
	for _, tt := range tests {
		if got := ParseNukeKind(tt.token); got != tt.want {
			t.Errorf("ParseNukeKind(%q) = %v, want %v", tt.token, got, tt.want)
		}
	}
}

func TestDigests(t *testing.T) {
	d := Draft{Title: "Burning.Daylight.2010.720p.BluRay.x264-SADPANDA"}
	d.Digests()
	if len(d.MD5) != 32 || len(d.SHA1) != 40 {
		t.Fatalf("digest lengths md5=%d sha1=%d", len(d.MD5), len(d.SHA1))
	}
	// Digest of the same title is stable and not recomputed once set.
	md5Was := d.MD5
	d.Digests()
	if d.MD5 != md5Was {
		t.Error("digest changed on second call")
	}
	var empty Draft
	empty.Digests()
	if empty.MD5 != "" {
		t.Error("digest computed for empty title")
	}
}

func TestInsertPlanSkipsEmptyFields(t *testing.T) {
	d := &Draft{Title: "A.Release-GRP", Size: "753MB", Category: "XXX", RequestID: 326264}
	d.Digests()
	query, args := insertPlan(d, 0)

	for _, col := range []string{"title", "md5", "sha1", "size", "category", "requestid"} {
		if !strings.Contains(query, col) {
			t.Errorf("insert query missing %s: %s", col, query)
		}
	}
	for _, col := range []string{"source", "groupid", "filename", "nuked", "files", "predate"} {
		if strings.Contains(query, col) {
			t.Errorf("insert query includes unset %s: %s", col, query)
		}
	}
	if len(args) != 6 {
		t.Errorf("args = %v, want 6 values", args)
	}
	if !strings.HasSuffix(query, "RETURNING id") {
		t.Errorf("insert query has no RETURNING clause: %s", query)
	}
}

func TestInsertPlanCarriesPredate(t *testing.T) {
	when := time.Now().Add(-200 * time.Second)
	d := &Draft{Title: "T", PreDate: when}
	d.Digests()
	query, args := insertPlan(d, 7)
	if !strings.Contains(query, "predate") || !strings.Contains(query, "groupid") {
		t.Fatalf("insert query = %s", query)
	}
	if args[len(args)-1] != when {
		t.Errorf("predate arg = %v, want %v", args[len(args)-1], when)
	}
}

func TestMergeOnlyFillsEmptyFields(t *testing.T) {
	old := &Release{ID: 1, Title: "T", Size: "800MB", Category: "TV"}
	d := &Draft{Title: "T", Size: "900MB", Category: "Movies", Files: "19x50MB", Filename: "grp-t"}
	cols, _ := mergeChanges(old, d, 0)

	got := strings.Join(cols, ",")
	if strings.Contains(got, "size") || strings.Contains(got, "category") {
		t.Errorf("merge overwrote populated fields: %v", cols)
	}
	if !strings.Contains(got, "files") || !strings.Contains(got, "filename") {
		t.Errorf("merge skipped empty fields: %v", cols)
	}
}

func TestMergeIdenticalDraftIsNoop(t *testing.T) {
	old := &Release{ID: 1, Title: "T", Size: "800MB", Category: "TV", Source: "#a.b.teevee",
		GroupID: 3, RequestID: 42, Files: "19x50MB", Filename: "grp-t"}
	d := &Draft{Title: "T", Size: "800MB", Category: "TV", Source: "#a.b.teevee",
		RequestID: 42, Files: "19x50MB", Filename: "grp-t"}
	if cols, _ := mergeChanges(old, d, 3); len(cols) != 0 {
		t.Errorf("identical draft produced changes: %v", cols)
	}
}

func TestMergeNukeOnlyStillChanges(t *testing.T) {
	// A nuke arriving for a fully populated row must still force a write (and
	// with it the pending-update flag) even though every other field is kept.
	old := &Release{ID: 1, Title: "T", Size: "800MB", Category: "TV", State: StatePublished}
	d := &Draft{Title: "T", Nuke: NukeNuked, Reason: "bad.ivtc"}
	cols, args := mergeChanges(old, d, 0)
	if len(cols) != 2 {
		t.Fatalf("cols = %v, want nuked and nukereason", cols)
	}
	query, all := updateQuery(old.ID, cols, args)
	if !strings.Contains(query, "shared = $3") {
		t.Errorf("update query does not force pending-update: %s", query)
	}
	if all[2] != int16(StatePendingUpdate) {
		t.Errorf("shared arg = %v, want %d", all[2], StatePendingUpdate)
	}
	if all[len(all)-1] != int64(1) {
		t.Errorf("id arg = %v, want 1", all[len(all)-1])
	}
}

func TestMergeUnnukeOverwritesNukedStatus(t *testing.T) {
	old := &Release{ID: 1, Title: "T", Nuke: NukeNuked, Reason: "get.samplefix"}
	d := &Draft{Title: "T", Nuke: NukeUnnuked, Reason: "get.samplefix"}
	cols, args := mergeChanges(old, d, 0)
	if len(cols) != 1 || cols[0] != "nuked" {
		t.Fatalf("cols = %v, want just nuked", cols)
	}
	if args[0] != int16(NukeUnnuked) {
		t.Errorf("nuked arg = %v", args[0])
	}
}

func TestPublishStateStrings(t *testing.T) {
	if StatePendingNew.String() != "pending-new" ||
		StatePublished.String() != "published" ||
		StatePendingUpdate.String() != "pending-update" {
		t.Error("publish state labels wrong")
	}
}

func TestNukeLabels(t *testing.T) {
	want := map[NukeStatus]string{
		NukeNone:     "",
		NukeNuked:    "NUKED",
		NukeUnnuked:  "UNNUKED",
		NukeModnuked: "MODNUKE",
		NukeRenuked:  "RENUKED",
		NukeOldnuke:  "OLDNUKE",
	}
	for status, label := range want {
		if got := status.Label(); got != label {
			t.Errorf("Label(%d) = %q, want %q", status, got, label)
		}
	}
}

package predb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/scenefeed/prebot/db"
	"github.com/scenefeed/prebot/telemetry"
)

// Outcome is what a sync did with a draft.
type Outcome int

const (
	Ignored Outcome = iota
	Inserted
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Store synchronizes release drafts into the predb table. It caches group
// name to id lookups for the process lifetime.
type Store struct {
	db     *sql.DB
	groups map[string]int64
}

func NewStore(dbc *sql.DB) *Store {
	return &Store{db: dbc, groups: make(map[string]int64)}
}

// GroupID resolves a usenet group name to its row id, creating the row on
// first sight. An empty name resolves to 0 (stored as NULL-equivalent).
func (s *Store) GroupID(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	if id, ok := s.groups[name]; ok {
		return id, nil
	}
	id, err := db.InsertRetry(ctx, s.db, "group upsert",
		`INSERT INTO groups (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`, name)
	if err != nil {
		return 0, err
	}
	s.groups[name] = id
	return id, nil
}

// Sync applies one draft: insert a fresh row when the digest is unseen, merge
// into the existing row otherwise. Merging only fills stored fields that are
// still empty, except title and the nuke fields which always refresh; a merge
// with zero changes is a no-op. Any change forces the row back to
// pending-update so it gets announced again.
func (s *Store) Sync(ctx context.Context, d Draft) (Outcome, error) {
	if d.Title == "" {
		return Ignored, nil
	}
	d.Digests()

	outcome, err := Ignored, error(nil)
	telemetry.TimeFunc(telemetry.SyncDuration, func() {
		outcome, err = s.sync(ctx, &d)
	})
	if err != nil {
		return outcome, err
	}
	switch outcome {
	case Inserted:
		telemetry.IncCounter(telemetry.ReleasesInserted)
		telemetry.LoggerWithCorr(ctx).Info("release added",
			slog.String("source", d.Source), slog.String("title", d.Title),
			slog.String("category", d.Category), slog.String("size", d.Size))
	case Updated:
		telemetry.IncCounter(telemetry.ReleasesUpdated)
		telemetry.LoggerWithCorr(ctx).Info("release updated",
			slog.String("source", d.Source), slog.String("title", d.Title),
			slog.String("nuke", d.Nuke.Label()))
	case Ignored:
		telemetry.IncCounter(telemetry.ReleasesIgnored)
	}
	return outcome, nil
}

func (s *Store) sync(ctx context.Context, d *Draft) (Outcome, error) {
	groupID, err := s.GroupID(ctx, d.GroupName)
	if err != nil {
		return Ignored, err
	}

	old, err := s.lookupByMD5(ctx, d.MD5)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		query, args := insertPlan(d, groupID)
		if _, err := db.InsertRetry(ctx, s.db, "release insert", query, args...); err != nil {
			return Ignored, err
		}
		return Inserted, nil
	case err != nil:
		return Ignored, fmt.Errorf("release lookup: %w", err)
	}

	cols, args := mergeChanges(old, d, groupID)
	if len(cols) == 0 {
		return Ignored, nil
	}
	query, args := updateQuery(old.ID, cols, args)
	if _, err := db.ExecRetry(ctx, s.db, "release update", query, args...); err != nil {
		return Ignored, err
	}
	return Updated, nil
}

// SyncByTitle is the lightweight request-tracking flow: the dedupe key is the
// exact title, and only the source group and request id are tracked. Both are
// refreshed on every sighting.
func (s *Store) SyncByTitle(ctx context.Context, title, groupName string, requestID int64) (Outcome, error) {
	if title == "" {
		return Ignored, nil
	}
	groupID, err := s.GroupID(ctx, groupName)
	if err != nil {
		return Ignored, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM predb WHERE title = $1`, title).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		d := Draft{Title: title}
		d.Digests()
		_, err := db.InsertRetry(ctx, s.db, "request insert",
			`INSERT INTO predb (title, md5, sha1, source, groupid, requestid)
			 VALUES ($1, $2, $3, $4, NULLIF($5, 0), NULLIF($6, 0)) RETURNING id`,
			title, d.MD5, d.SHA1, groupName, groupID, requestID)
		if err != nil {
			return Ignored, err
		}
		telemetry.IncCounter(telemetry.ReleasesInserted)
		telemetry.LoggerWithCorr(ctx).Info("request added",
			slog.String("group", groupName), slog.Int64("reqid", requestID), slog.String("title", title))
		return Inserted, nil
	case err != nil:
		return Ignored, fmt.Errorf("request lookup: %w", err)
	}

	_, err = db.ExecRetry(ctx, s.db, "request update",
		`UPDATE predb SET source = $1, groupid = NULLIF($2, 0), requestid = NULLIF($3, 0), updated_at = NOW()
		 WHERE id = $4`, groupName, groupID, requestID, id)
	if err != nil {
		return Ignored, err
	}
	telemetry.IncCounter(telemetry.ReleasesUpdated)
	telemetry.LoggerWithCorr(ctx).Info("request updated",
		slog.String("group", groupName), slog.Int64("reqid", requestID), slog.String("title", title))
	return Updated, nil
}

// HasFilename reports whether the release with this title is already stored
// with a non-empty filename. Pollers that pay per-item page fetches use it to
// skip work that would merge to nothing.
func (s *Store) HasFilename(ctx context.Context, title string) (bool, error) {
	d := Draft{Title: title}
	d.Digests()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM predb WHERE md5 = $1 AND COALESCE(filename, '') <> ''`, d.MD5).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("filename lookup: %w", err)
	}
	return true, nil
}

func (s *Store) lookupByMD5(ctx context.Context, digest string) (*Release, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, COALESCE(size, ''), COALESCE(category, ''), COALESCE(source, ''),
		        COALESCE(groupid, 0), COALESCE(requestid, 0), COALESCE(nuked, 0),
		        COALESCE(nukereason, ''), COALESCE(files, ''), COALESCE(filename, ''), COALESCE(shared, 0)
		 FROM predb WHERE md5 = $1`, digest)
	var r Release
	var nuked, shared int16
	err := row.Scan(&r.ID, &r.Title, &r.Size, &r.Category, &r.Source,
		&r.GroupID, &r.RequestID, &nuked, &r.Reason, &r.Files, &r.Filename, &shared)
	if err != nil {
		return nil, err
	}
	r.Nuke = NukeStatus(nuked)
	r.State = PublishState(shared)
	return &r, nil
}

// insertPlan builds the insert statement for a fresh release. Only populated
// draft fields become columns; title and both digests are always present, and
// predate falls back to the table default of NOW().
func insertPlan(d *Draft, groupID int64) (string, []any) {
	cols := []string{"title", "md5", "sha1"}
	args := []any{d.Title, d.MD5, d.SHA1}
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if d.Size != "" {
		add("size", d.Size)
	}
	if d.Category != "" {
		add("category", d.Category)
	}
	if d.Source != "" {
		add("source", d.Source)
	}
	if d.Reason != "" {
		add("nukereason", d.Reason)
	}
	if d.Files != "" {
		add("files", d.Files)
	}
	if d.RequestID != 0 {
		add("requestid", d.RequestID)
	}
	if groupID != 0 {
		add("groupid", groupID)
	}
	if d.Nuke != NukeNone {
		add("nuked", int16(d.Nuke))
	}
	if d.Filename != "" {
		add("filename", d.Filename)
	}
	if !d.PreDate.IsZero() {
		add("predate", d.PreDate)
	}

	ph := make([]string, len(cols))
	for i := range cols {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	query := "INSERT INTO predb (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(ph, ", ") + ") RETURNING id"
	return query, args
}

// mergeChanges computes the column writes for a repeat sighting. Stored fields
// only get written while still empty; title, nuke status and nuke reason
// always refresh when they differ. An empty result means nothing changed.
func mergeChanges(old *Release, d *Draft, groupID int64) ([]string, []any) {
	var cols []string
	var args []any
	add := func(col string, v any) {
		cols = append(cols, col)
		args = append(args, v)
	}
	if old.Size == "" && d.Size != "" {
		add("size", d.Size)
	}
	if old.Category == "" && d.Category != "" {
		add("category", d.Category)
	}
	if old.Source == "" && d.Source != "" {
		add("source", d.Source)
	}
	if old.Files == "" && d.Files != "" {
		add("files", d.Files)
	}
	if old.Filename == "" && d.Filename != "" {
		add("filename", d.Filename)
	}
	if old.RequestID == 0 && d.RequestID != 0 {
		add("requestid", d.RequestID)
	}
	if old.GroupID == 0 && groupID != 0 {
		add("groupid", groupID)
	}
	if d.Title != "" && d.Title != old.Title {
		add("title", d.Title)
	}
	if d.Nuke != NukeNone && d.Nuke != old.Nuke {
		add("nuked", int16(d.Nuke))
	}
	if d.Reason != "" && d.Reason != old.Reason {
		add("nukereason", d.Reason)
	}
	return cols, args
}

// updateQuery renders the merge column writes plus the forced pending-update
// flag into one statement.
func updateQuery(id int64, cols []string, args []any) (string, []any) {
	sets := make([]string, 0, len(cols)+2)
	for i, col := range cols {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+1))
	}
	args = append(args, int16(StatePendingUpdate))
	sets = append(sets, fmt.Sprintf("shared = $%d", len(args)))
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := "UPDATE predb SET " + strings.Join(sets, ", ") +
		fmt.Sprintf(" WHERE id = $%d", len(args))
	return query, args
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	ActionBlock = "BLOCK"
	ActionAllow = "ALLOW"

	// SourceUser marks entries that come from the config file rather than a feed.
	SourceUser = "user_manual"
)

// Entry is one domain listed by one source.
type Entry struct {
	Domain    string
	Action    string
	Source    string
	UpdatedAt time.Time
}

// ListDB stores feed and user list entries. A domain may be listed by
// several sources; each source is synced independently.
type ListDB struct {
	db *sql.DB
}

func (d *ListDB) InitDB(path string) error {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("could not create directory for db: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("could not open db: %w", err)
	}

	// One connection: writers are serialized and ":memory:" stays a single database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("could not connect to db (check permissions): %w", err)
	}

	d.db = db

	if _, err := d.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}

	q := `
	CREATE TABLE IF NOT EXISTS entries (
		domain TEXT NOT NULL,
		source TEXT NOT NULL,
		action TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (domain, source)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_action ON entries(action, domain);
	CREATE INDEX IF NOT EXISTS idx_entries_source ON entries(source, updated_at);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`
	if _, err = d.db.Exec(q); err != nil {
		return fmt.Errorf("could not init tables: %w", err)
	}

	return nil
}

func (d *ListDB) Close() error {
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *ListDB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *ListDB) GetETag(key string) string {
	var val string
	_ = d.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key+"_etag").Scan(&val)
	return val
}

func (d *ListDB) UpdateETag(key, etag string) error {
	_, err := d.db.Exec("INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)", key+"_etag", etag)
	return err
}

// SyncUserRules replaces the config-provided entries.
func (d *ListDB) SyncUserRules(whitelist []string, blacklist []string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries WHERE source = ?", SourceUser); err != nil {
		return err
	}

	now := time.Now().UnixNano()
	upsert := func(domain, action string) error {
		domain = NormalizeDomain(domain)
		if domain == "" {
			return nil
		}
		_, err := tx.Exec(`
		INSERT INTO entries (domain, source, action, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(domain, source) DO UPDATE SET action = excluded.action;
		`, domain, SourceUser, action, now)
		return err
	}

	for _, domain := range blacklist {
		if err := upsert(domain, ActionBlock); err != nil {
			return err
		}
	}

	// Whitelist entries are written last so they win over a duplicate blacklist entry.
	for _, domain := range whitelist {
		if err := upsert(domain, ActionAllow); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// StreamSync upserts everything received on dataStream for source, then
// sweeps the source's entries that were not seen in this run. The stream is
// always drained so the producer never blocks. On error or cancellation the
// transaction is rolled back and the previous entries survive.
func (d *ListDB) StreamSync(ctx context.Context, dataStream <-chan Entry, source string) (int, error) {
	defer func() {
		for range dataStream {
		}
	}()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	importTime := time.Now().UnixNano()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO entries (domain, source, action, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(domain, source) DO UPDATE SET
		action = excluded.action,
		updated_at = excluded.updated_at;
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	count := 0
	for item := range dataStream {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, item.Domain, source, item.Action, importTime); err != nil {
			slog.Warn("failed to insert entry", "domain", item.Domain, "source", source, "error", err)
			continue
		}
		count++
	}

	// A producer that failed cancels ctx before closing the stream.
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE source = ? AND updated_at != ?`, source, importTime); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	slog.Debug("source synced", "source", source, "entries", count)
	return count, nil
}

func (d *ListDB) queryDomains(query string, args ...any) ([]string, error) {
	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []string
	for rows.Next() {
		var domain string
		if err := rows.Scan(&domain); err != nil {
			return nil, err
		}
		domains = append(domains, domain)
	}
	return domains, rows.Err()
}

// BlockedDomains lists blocked domains that no source allows, sorted.
func (d *ListDB) BlockedDomains() ([]string, error) {
	return d.queryDomains(`
	SELECT DISTINCT domain FROM entries
	WHERE action = ? AND domain NOT IN (SELECT domain FROM entries WHERE action = ?)
	ORDER BY domain`, ActionBlock, ActionAllow)
}

func (d *ListDB) AllowedDomains() ([]string, error) {
	return d.queryDomains(`SELECT DISTINCT domain FROM entries WHERE action = ? ORDER BY domain`, ActionAllow)
}

// GetEntries returns every source's entry for domain.
func (d *ListDB) GetEntries(domain string) ([]Entry, error) {
	rows, err := d.db.Query(
		"SELECT domain, action, source, updated_at FROM entries WHERE domain = ? ORDER BY source",
		NormalizeDomain(domain))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ns int64
		)
		if err := rows.Scan(&e.Domain, &e.Action, &e.Source, &ns); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(0, ns)
		out = append(out, e)
	}
	return out, rows.Err()
}

// SourceCounts returns the number of entries held for each source.
func (d *ListDB) SourceCounts() (map[string]int, error) {
	rows, err := d.db.Query("SELECT source, COUNT(*) FROM entries GROUP BY source")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			source string
			n      int
		)
		if err := rows.Scan(&source, &n); err != nil {
			return nil, err
		}
		counts[source] = n
	}
	return counts, rows.Err()
}

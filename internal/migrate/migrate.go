// Package migrate runs the Measurement Store's forward-only SQL migration
// scripts, tracking each applied script by a parsed semantic version tag
// and a content checksum (generalizing the teacher's integer-version
// migrator to the spec's MAJOR.MINOR.PATCH + checksum contract).
package migrate

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
)

// ErrChecksumMismatch is fatal: a previously-applied migration's on-disk
// content no longer matches what was recorded at apply time.
var ErrChecksumMismatch = fmt.Errorf("migrate: checksum mismatch for an already-applied migration")

// Script is one parsed migration file.
type Script struct {
	Version     Version
	Description string
	SQL         string
	Checksum    string
}

// Version is a parsed MAJOR.MINOR.PATCH tag, ordered component-wise.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	if v.Major != o.Major {
		return v.Major < o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor < o.Minor
	}
	return v.Patch < o.Patch
}

var filenamePattern = regexp.MustCompile(`^\d+_(.+)_v(\d+)\.(\d+)\.(\d+)\.sql$`)

// LoadScripts reads every `NNN_description_vMAJOR.MINOR.PATCH.sql` file in
// dir (a directory FS, typically embed.FS or os.DirFS) and returns them
// sorted ascending by version.
func LoadScripts(dir fs.FS) ([]Script, error) {
	entries, err := fs.ReadDir(dir, ".")
	if err != nil {
		return nil, fmt.Errorf("migrate: reading migration directory: %w", err)
	}

	var scripts []Script
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		matches := filenamePattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}
		major, _ := strconv.Atoi(matches[2])
		minor, _ := strconv.Atoi(matches[3])
		patch, _ := strconv.Atoi(matches[4])

		content, err := fs.ReadFile(dir, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("migrate: reading %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)

		scripts = append(scripts, Script{
			Version:     Version{Major: major, Minor: minor, Patch: patch},
			Description: matches[1],
			SQL:         string(content),
			Checksum:    hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Version.Less(scripts[j].Version) })
	return scripts, nil
}

// applied is one row read back from migration_history.
type applied struct {
	version  Version
	checksum string
}

const createHistoryTableSQL = `
CREATE TABLE IF NOT EXISTS migration_history (
	version     TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Run applies every unapplied script in dir to db, in version order, each
// under its own transaction. It is idempotent: re-running on an
// up-to-date database applies nothing and returns appliedAny=false. A
// checksum mismatch on an already-applied version is fatal.
func Run(db *sql.DB, dir fs.FS) (appliedAny bool, err error) {
	if _, err := db.Exec(createHistoryTableSQL); err != nil {
		return false, fmt.Errorf("migrate: creating migration_history: %w", err)
	}

	scripts, err := LoadScripts(dir)
	if err != nil {
		return false, err
	}

	history, err := loadHistory(db)
	if err != nil {
		return false, err
	}

	for _, script := range scripts {
		if prior, ok := history[script.Version]; ok {
			if prior.checksum != script.Checksum {
				return appliedAny, fmt.Errorf("%w: version %s", ErrChecksumMismatch, script.Version)
			}
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return appliedAny, fmt.Errorf("migrate: beginning transaction for %s: %w", script.Version, err)
		}
		if _, err := tx.Exec(script.SQL); err != nil {
			_ = tx.Rollback()
			return appliedAny, fmt.Errorf("migrate: applying %s: %w", script.Version, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO migration_history (version, description, checksum) VALUES (?, ?, ?)`,
			script.Version.String(), script.Description, script.Checksum,
		); err != nil {
			_ = tx.Rollback()
			return appliedAny, fmt.Errorf("migrate: recording %s: %w", script.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return appliedAny, fmt.Errorf("migrate: committing %s: %w", script.Version, err)
		}
		appliedAny = true
	}

	return appliedAny, nil
}

func loadHistory(db *sql.DB) (map[Version]applied, error) {
	rows, err := db.Query(`SELECT version, checksum FROM migration_history`)
	if err != nil {
		return nil, fmt.Errorf("migrate: reading migration_history: %w", err)
	}
	defer rows.Close()

	history := make(map[Version]applied)
	for rows.Next() {
		var versionStr, checksum string
		if err := rows.Scan(&versionStr, &checksum); err != nil {
			return nil, fmt.Errorf("migrate: scanning migration_history row: %w", err)
		}
		v, err := parseVersion(versionStr)
		if err != nil {
			return nil, err
		}
		history[v] = applied{version: v, checksum: checksum}
	}
	return history, rows.Err()
}

func parseVersion(s string) (Version, error) {
	var v Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &v.Major, &v.Minor, &v.Patch); err != nil {
		return Version{}, fmt.Errorf("migrate: invalid version %q in migration_history: %w", s, err)
	}
	return v, nil
}

package migrate

import (
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/multierr"
)

var (
	sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)
	// inventory_movements is the stock ledger; schema changes may add to it
	// but never rewrite recorded rows.
	ledgerRewriteRe = regexp.MustCompile(`(?i)\b(update\s+inventory_movements|delete\s+from\s+inventory_movements|truncate\s+(table\s+)?inventory_movements)\b`)
)

// ValidateDir checks the migrations stored under dir.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	return ValidateFS(os.DirFS(dir))
}

// ValidateFS checks file names, goose annotations and the ledger rule for
// every migration in fsys, reporting all problems at once.
func ValidateFS(fsys fs.FS) error {
	files, err := migrationFiles(fsys)
	if err != nil {
		return err
	}

	var errs error
	seen := map[string]string{}
	for _, name := range files {
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := fs.ReadFile(fsys, name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, checkContent(name, string(b)))
	}
	return errs
}

func checkContent(name, txt string) error {
	var errs error
	upAt := strings.Index(txt, "-- +goose Up")
	downAt := strings.Index(txt, "-- +goose Down")
	if upAt < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing \"-- +goose Up\"", name))
	}
	if downAt < 0 {
		errs = multierr.Append(errs, fmt.Errorf("migration %q missing \"-- +goose Down\"", name))
	}
	if strings.Count(txt, "-- +goose StatementBegin") != strings.Count(txt, "-- +goose StatementEnd") {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has unbalanced StatementBegin/StatementEnd", name))
	}
	if upAt >= 0 {
		up := txt[upAt:]
		if downAt > upAt {
			up = txt[upAt:downAt]
		}
		if ledgerRewriteRe.MatchString(up) {
			errs = multierr.Append(errs, fmt.Errorf("migration %q rewrites inventory_movements rows", name))
		}
	}
	return errs
}

func migrationFiles(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// latestVersion returns the highest well-formed version in fsys, or 0.
func latestVersion(fsys fs.FS) (int64, error) {
	files, err := migrationFiles(fsys)
	if err != nil {
		return 0, err
	}
	var latest int64
	for _, name := range files {
		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		v, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && v > latest {
			latest = v
		}
	}
	return latest, nil
}

// Package migrations embeds the SQL schema for every supported account store.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// FS holds one directory of golang-migrate files per driver.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS

// Up returns the contents of every up migration for driver in version order.
//
// Precondition: driver names a directory in FS.
func Up(driver string) ([]string, error) {
	entries, err := fs.ReadDir(FS, driver)
	if err != nil {
		return nil, fmt.Errorf("listing %s migrations: %w", driver, err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		b, err := fs.ReadFile(FS, driver+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", name, err)
		}
		out = append(out, string(b))
	}
	return out, nil
}

// Source returns a golang-migrate source over the embedded files for driver.
func Source(driver string) (source.Driver, error) {
	src, err := iofs.New(FS, driver)
	if err != nil {
		return nil, fmt.Errorf("opening %s migrations: %w", driver, err)
	}
	return src, nil
}

package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/banshee-data/lanepilot/internal/db"
)

// runMigrate handles "lanepilot migrate <command>".
func runMigrate(path string, args []string) error {
	if path == "" {
		return errors.New("migrate needs -db")
	}
	if len(args) == 0 {
		return errors.New("migrate needs a command: up, down, version or force <version>")
	}

	store, err := db.OpenDB(path)
	if err != nil {
		return err
	}
	defer store.Close()
	src := db.MigrationsFS()

	switch args[0] {
	case "up":
		if err := store.MigrateUp(src); err != nil {
			return err
		}
	case "down":
		if err := store.MigrateDown(src); err != nil {
			return err
		}
	case "version":
	case "force":
		if len(args) != 2 {
			return errors.New("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[1], err)
		}
		if err := store.MigrateForce(src, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}

	version, dirty, err := store.MigrateVersion(src)
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion(src)
	if err != nil {
		return err
	}
	log.Printf("%s: schema version %d of %d (dirty=%v)", path, version, latest, dirty)
	return nil
}

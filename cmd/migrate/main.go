// Command migrate manages the sqlite schema outside of ingestd's own
// startup auto-migration, for operators who want an explicit step before a
// deploy. Subcommand dispatch is trimmed from
// banshee-data-velocity.report/internal/db/migrate_cli.go's RunMigrateCommand
// (that version also carries legacy schema-detection/baseline tooling for
// pre-migrate-era databases, which this project has no equivalent of: every
// deployment starts from migration 000001).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cinet-track/ingest/internal/store/sqlitestore"
)

var dbPath = flag.String("db", "data/cinet.db", "path to the sqlite database file")

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		printHelp()
		os.Exit(1)
	}

	st, err := sqlitestore.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database %s: %v", *dbPath, err)
	}
	defer st.Close()

	switch args[0] {
	case "up":
		// Open() already ran migrate up; this subcommand exists for
		// symmetry and to report the resulting version.
		version, dirty, err := st.MigrateVersion()
		if err != nil {
			log.Fatalf("migrate up: %v", err)
		}
		log.Printf("database is at version %d (dirty: %v)", version, dirty)

	case "down":
		if err := st.MigrateDown(); err != nil {
			log.Fatalf("migrate down: %v", err)
		}
		version, dirty, _ := st.MigrateVersion()
		log.Printf("rolled back; now at version %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := st.MigrateVersion()
		if err != nil {
			log.Fatalf("migrate status: %v", err)
		}
		fmt.Printf("current version: %d\n", version)
		fmt.Printf("dirty: %v\n", dirty)
		if dirty {
			fmt.Println("\nWARNING: database is in a dirty state; a migration failed mid-execution.")
			fmt.Println("Inspect the database manually, then run: migrate -db <path> force <version>")
		}

	case "version":
		if len(args) < 2 {
			log.Fatal("usage: migrate version <N>")
		}
		var target uint
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("invalid version %q", args[1])
		}
		if err := st.MigrateTo(target); err != nil {
			log.Fatalf("migrate to %d: %v", target, err)
		}
		log.Printf("migrated to version %d", target)

	case "force":
		if len(args) < 2 {
			log.Fatal("usage: migrate force <N>")
		}
		var target int
		if _, err := fmt.Sscanf(args[1], "%d", &target); err != nil {
			log.Fatalf("invalid version %q", args[1])
		}
		if err := st.MigrateForce(target); err != nil {
			log.Fatalf("migrate force %d: %v", target, err)
		}
		log.Printf("forced version to %d", target)

	case "help":
		printHelp()

	default:
		fmt.Printf("unknown migrate command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Println("Usage: migrate -db <path> <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up            apply all pending migrations (also runs automatically on open)")
	fmt.Println("  down          roll back the most recent migration")
	fmt.Println("  status        show current version and dirty state")
	fmt.Println("  version <N>   migrate to a specific version")
	fmt.Println("  force <N>     force the recorded version without running steps (recovery only)")
	fmt.Println("  help          show this help message")
}

// Command migrate applies or forces a service's embedded schema migrations.
//
//	migrate -service booking up
//	migrate -service commission force 1
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/md-rashed-zaman/agenda/libs/config"
	"github.com/md-rashed-zaman/agenda/libs/db"
	bookingmigrations "github.com/md-rashed-zaman/agenda/services/booking-service/migrations"
	commissionmigrations "github.com/md-rashed-zaman/agenda/services/commission-service/migrations"
)

type schema struct {
	fs    fs.FS
	table string
}

var schemas = map[string]schema{
	"booking":    {fs: bookingmigrations.FS, table: bookingmigrations.Table},
	"commission": {fs: commissionmigrations.FS, table: commissionmigrations.Table},
}

func main() {
	_ = godotenv.Load()

	service := flag.String("service", "", "booking or commission")
	dbURL := flag.String("database-url", config.String("DATABASE_URL", ""), "postgres url")
	flag.Parse()

	s, ok := schemas[*service]
	if !ok {
		fatal("unknown -service %q (booking, commission)", *service)
	}
	if *dbURL == "" {
		fatal("DATABASE_URL is required")
	}

	args := flag.Args()
	cmd := "up"
	if len(args) > 0 {
		cmd = args[0]
	}
	switch cmd {
	case "up":
		version, err := db.Migrate(*dbURL, s.fs, s.table)
		if err != nil {
			fatal("migrate up: %v", err)
		}
		fmt.Printf("%s schema at version %d\n", *service, version)
	case "force":
		if len(args) < 2 {
			fatal("force needs a version")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			fatal("bad version %q", args[1])
		}
		if err := db.Force(*dbURL, s.fs, s.table, v); err != nil {
			fatal("migrate force: %v", err)
		}
		fmt.Printf("%s schema forced to version %d\n", *service, v)
	default:
		fatal("unknown command %q (up, force)", cmd)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(2)
}

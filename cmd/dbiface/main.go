// Command dbiface checks connectivity to a PostgreSQL database, then
// creates, fills and reads back a demo table.
//
//	dbiface [--host localhost] [--db cs148db] [--user centos]
//	        [--tablename testtable] [--removetable] <password>
//
// When DATABASE_URL is set the table work runs over that connection.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gurre/cloudlab/config"
	"github.com/gurre/cloudlab/logging"
	"github.com/gurre/cloudlab/pgdb"
	"github.com/gurre/cloudlab/reading"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("dbiface", flag.ExitOnError)
	host := fs.String("host", "localhost", "DB host IP")
	dbname := fs.String("db", "cs148db", "DB name")
	user := fs.String("user", "centos", "postgres user name")
	tableName := fs.String("tablename", "testtable", "table to create")
	removeTable := fs.Bool("removetable", false, "delete the table when done")
	sslMode := fs.String("sslmode", "disable", "sslmode connection parameter")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: dbiface [flags] <password>\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("the postgres user password is required")
	}

	log, err := logging.FromEnv("dbiface")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := pgdb.Open(ctx, config.DatabaseConfig{
		Host:     *host,
		User:     *user,
		Password: fs.Arg(0),
		Database: *dbname,
		SSLMode:  *sslMode,
	}, log)
	if err != nil {
		return err
	}
	version, err := db.Version(ctx)
	if err != nil {
		_ = db.Close()
		return err
	}
	fmt.Printf("Postgres version test using the names passed in on the command line: %s\n", version)

	var fromEnv config.DatabaseConfig
	fromEnv.LoadFromEnv(config.Environ)
	if fromEnv.URL != "" {
		if err := db.Close(); err != nil {
			log.Warn("closing first connection", zap.Error(err))
		}
		if db, err = pgdb.Open(ctx, fromEnv, log); err != nil {
			return err
		}
		if version, err = db.Version(ctx); err != nil {
			_ = db.Close()
			return err
		}
		fmt.Printf("Postgres version test using DATABASE_URL environment variable, if set: %s\n", version)
	} else {
		fmt.Println("DATABASE_URL is not set...")
	}

	err = demo(ctx, db, *tableName, *removeTable)
	if closeErr := db.Close(); err == nil {
		err = closeErr
	}
	return err
}

// demo creates the table if needed, inserts three measurements and prints
// the table contents.
func demo(ctx context.Context, db *pgdb.DB, table string, remove bool) error {
	exists, err := db.TableExists(ctx, table)
	if err != nil {
		return err
	}
	fmt.Printf("Does the table already exist (True=Yes)? %t\n", exists)

	if !exists {
		if err := db.CreateTable(ctx, reading.KindData, table); err != nil {
			return err
		}
	}

	for _, meas := range []float64{-1.0, 2.0, 2.4} {
		if err := db.InsertMeasurement(ctx, table, time.Now(), meas); err != nil {
			return err
		}
	}
	if err := db.Commit(); err != nil {
		return err
	}

	res, err := db.SelectAll(ctx, table)
	if err != nil {
		return err
	}
	fmt.Printf("All data found in table %s:\n", table)
	for _, row := range res.Rows {
		fmt.Println(pgdb.FormatRow(row))
	}

	if remove {
		fmt.Printf("removing table %s\n", table)
		return db.DropTable(ctx, table)
	}
	return nil
}

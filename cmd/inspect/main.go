// Command inspect dumps the stored message history of a running or
// stopped relay in a table, without disturbing the server's lock.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"chat-relay/admin"
	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/repositories"
)

type Config struct {
	BadgerFilepath string `env:"BADGER_FILEPATH"`
	LogLevel       string `env:"LOG_LEVEL,default=WARN"`
}

func main() {
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	dbPath := flag.String("db", config.BadgerFilepath, "path to the badger database")
	sinceID := flag.Int64("since", 0, "only show messages with a greater id")
	limit := flag.Int("limit", 50, "maximum number of rows, 0 for all")
	sender := flag.String("sender", "", "only show messages from this nickname")
	flag.Parse()

	if *dbPath == "" {
		log.Fatal("No database path: pass -db or set BADGER_FILEPATH")
	}

	// BypassLockGuard allows opening while the relay holds the lock.
	opts := badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	logger := internal.GetLoggerFromString(config.LogLevel)
	repository := repositories.NewMessageRepository(db, logger)
	service := admin.NewService(repository, logger)

	views, err := service.ListMessages(domain.ListFilter{
		SinceID: *sinceID,
		Sender:  *sender,
		Limit:   *limit,
	})
	if err != nil {
		log.Fatalf("Failed to list messages: %v", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Kind", "Preview", "At"})
	for _, view := range views {
		table.Append([]string{
			strconv.FormatInt(view.ID, 10),
			view.Sender,
			view.Kind,
			view.Preview,
			view.At.Format(time.RFC3339),
		})
	}
	table.Render()
	fmt.Printf("%d message(s)\n", len(views))
}

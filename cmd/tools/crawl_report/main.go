package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/hbarker/grant-radar/internal/db"
)

// Prints the recent crawl run history as a table, for eyeballing source
// health after a scheduled run.
func main() {
	_ = godotenv.Load()

	limit := flag.Int("limit", 30, "number of rows to show")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	runs, err := store.RecentCrawlRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Batch", "Fetched", "Upserted", "Error", "Duration", "Finished At"})

	for _, r := range runs {
		errCol := ""
		if r.ErrorKind != "" {
			errCol = r.ErrorKind + ": " + r.ErrorMsg
			if len(errCol) > 60 {
				errCol = errCol[:60]
			}
		}
		duration := r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		t.AppendRow(table.Row{r.Source, r.Batch, r.Fetched, r.Upserted, errCol, duration, r.FinishedAt.Format("2006-01-02 15:04")})
	}
	t.Render()
}

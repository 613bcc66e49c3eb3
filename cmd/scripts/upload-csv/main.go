package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/models"
	"github.com/skretail/console/pkg/session"
	"github.com/skretail/console/pkg/upload"
)

func main() {
	log := logger.New()

	var opts struct {
		APIBaseURL   string `long:"api" env:"API_BASE_URL" required:"true" description:"Backend API base URL"`
		Entity       string `short:"e" long:"entity" default:"products" description:"Upload target (products, mrp, gn, appario, coco)"`
		AccessToken  string `long:"access-token" env:"ACCESS_TOKEN" required:"true" description:"Backend access token"`
		RefreshToken string `long:"refresh-token" env:"REFRESH_TOKEN" description:"Backend refresh token"`
		ChunkSize    int    `short:"c" long:"chunk-size" default:"100" description:"Rows per batch"`
		Output       string `short:"o" long:"output" description:"A path to write the combined result CSV"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/upload-csv --api <url> --access-token <token> <path/to/file.csv>")
		os.Exit(1)
	}
	if !upload.ValidEntity(opts.Entity) {
		log.Fatal("unknown entity", logger.Data{"entity": opts.Entity, "valid": upload.Entities})
	}

	ctx := log.WithContext(context.Background())

	store := session.NewMemoryStore()
	sess := &models.Session{
		ID:           uuid.New().String(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
		AccessToken:  opts.AccessToken,
		RefreshToken: opts.RefreshToken,
	}
	if err := store.Save(ctx, sess); err != nil {
		log.Err(err).Fatal("session save error")
	}
	sessions := session.NewService(store, apiclient.New(opts.APIBaseURL))

	f, err := os.Open(args[0])
	if err != nil {
		log.Err(err).Fatal("file open error")
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		log.Err(err).Fatal("file stat error")
	}

	pipeline := upload.NewPipeline(sessions.Requester(sess.ID), opts.ChunkSize)
	res, runErr := pipeline.Run(ctx, f, info.Size(), upload.Endpoint(opts.Entity), func(res *upload.Result) {
		fmt.Printf("batch %d: %d valid, %d errors, %d%%\n", res.BatchesSent, len(res.ValidRecords), len(res.ErrorRecords), res.ProgressPercent)
	})

	if opts.Output != "" {
		out, err := os.Create(opts.Output)
		if err != nil {
			log.Err(err).Fatal("output create error")
		}
		if err := res.ExportCSV(out); err != nil {
			log.Err(err).Fatal("export error")
		}
		if err := out.Close(); err != nil {
			log.Err(err).Fatal("output close error")
		}
	}

	fmt.Printf("Valid: %d\nErrors: %d\nBatches: %d\n", len(res.ValidRecords), len(res.ErrorRecords), res.BatchesSent)
	if runErr != nil {
		log.Err(runErr).Fatal("upload aborted")
	}
}

package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/robinjoseph08/golib/signals"
	"github.com/skretail/console/pkg/apiclient"
	"github.com/skretail/console/pkg/config"
	"github.com/skretail/console/pkg/database"
	"github.com/skretail/console/pkg/jobs"
	"github.com/skretail/console/pkg/labels"
	"github.com/skretail/console/pkg/migrations"
	"github.com/skretail/console/pkg/server"
	"github.com/skretail/console/pkg/session"
	"github.com/skretail/console/pkg/version"
	"github.com/skretail/console/pkg/worker"
)

func main() {
	ctx := context.Background()
	log := logger.New()

	log.Info("starting console", logger.Data{"version": version.Version})

	cfg, err := config.New()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	if err := initCacheDir(cfg); err != nil {
		log.Err(err).Fatal("cache directory error")
	}
	log.Info("cache directory initialized", logger.Data{"path": cfg.CacheDir})

	db, err := database.New(cfg)
	if err != nil {
		log.Err(err).Fatal("database error")
	}

	group, err := migrations.BringUpToDate(ctx, db)
	if err != nil {
		log.Err(err).Fatal("migrations error")
	}
	if group.ID == 0 {
		log.Info("no new migrations to run")
	} else {
		log.Info("migrated to new group", logger.Data{"group_id": group.ID, "migration_names": group.Migrations.String()})
	}

	backend := apiclient.New(cfg.APIBaseURL,
		apiclient.WithTimeout(cfg.UpstreamTimeout),
		apiclient.WithRejectStatus(cfg.UpstreamRejectStatus),
	)
	sessions := session.NewService(session.NewBunStore(db), backend)

	wrkr := worker.New(cfg, db, sessions)

	srv, err := server.New(cfg, db, sessions)
	if err != nil {
		log.Err(err).Fatal("server error")
	}

	graceful := signals.Setup()

	go func() {
		lc := net.ListenConfig{}
		listener, err := lc.Listen(ctx, "tcp", srv.Addr)
		if err != nil {
			log.Err(err).Fatal("failed to bind port")
		}
		log.Info("server started", logger.Data{"addr": listener.Addr().String(), "api_base_url": cfg.APIBaseURL})

		err = srv.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Err(err).Fatal("server stopped")
		}
		log.Info("server stopped")
	}()

	wrkr.Start()
	log.Info("worker started")

	<-graceful
	log.Info("starting graceful shutdown")

	err = srv.Shutdown(ctx)
	if err != nil {
		log.Err(err).Error("server shutdown error")
	}
	log.Info("server shutdown")

	wrkr.Shutdown()
	log.Info("worker shutdown")

	err = db.Close()
	if err != nil {
		log.Err(err).Error("database close error")
	}
	log.Info("database closed")
}

// initCacheDir creates the upload and label directories and verifies write
// permissions.
func initCacheDir(cfg *config.Config) error {
	for _, subdir := range []string{jobs.UploadDir(cfg), labels.DocumentDir(cfg)} {
		if err := os.MkdirAll(subdir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create cache directory: %s", subdir)
		}
	}

	testFile := filepath.Join(cfg.CacheDir, ".write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return errors.Wrapf(err, "cache directory is not writable: %s", cfg.CacheDir)
	}
	f.Close()

	if err := os.Remove(testFile); err != nil {
		return errors.Wrapf(err, "failed to clean up write test file: %s", testFile)
	}

	return nil
}

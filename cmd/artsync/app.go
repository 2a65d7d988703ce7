package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"artsync/internal/downloader"
	"artsync/pkg/auth"
	"artsync/pkg/config"
	"artsync/pkg/crawler"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/metrics"
	"artsync/pkg/site"
	"artsync/pkg/storage"
	"artsync/pkg/ui"
)

// app holds everything one command run needs
type app struct {
	cfg      *config.Config
	log      logger.Logger
	store    storage.Store
	client   *site.Client
	crawler  *crawler.Crawler
	tracker  *ui.StatusTracker
	notifier *ui.Notifier
	metrics  *metrics.Server

	ctx         context.Context
	interrupts  *crawler.Interrupter
	stopSignals func()
	started     time.Time
}

// loadConfig reads configuration and starts logging. Failures are config
// faults.
func loadConfig(cmd *cobra.Command) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(configFile, flagOverrides(cmd))
	if err != nil {
		return nil, nil, apperrors.NewConfig(err)
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, nil, apperrors.NewConfig(err)
	}
	if cfg.Logging.NoColor {
		ui.DisableColor()
	}
	return cfg, logger.GetLogger(), nil
}

// openStore opens the configured artifact store
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (storage.Store, error) {
	store, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, apperrors.NewConfig(fmt.Errorf("open database: %w", err))
	}
	return store, nil
}

// sessionCookie resolves the site session: config or environment first, then
// the named or most recent stored account.
func sessionCookie(cfg *config.Config, log logger.Logger) (string, error) {
	if cfg.Site.Cookie != "" && accountName == "" {
		return auth.NormalizeCookie(cfg.Site.Cookie), nil
	}
	manager, err := auth.NewManager()
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrorTypeAuth, err, "credential manager")
	}
	var account *auth.Account
	if accountName != "" {
		account, err = manager.Retrieve(accountName)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		return "", apperrors.NewAuth("no session cookie found; run 'artsync auth login' or set ARTSYNC_COOKIE")
	}
	if account.UserAgent != "" {
		cfg.Site.UserAgent = account.UserAgent
	}
	log.WithField("account", account.Username).Info("using stored credentials")
	return auth.NormalizeCookie(account.SessionCookie), nil
}

// newApp wires configuration, credentials, the site client, the store, the
// download engine and the crawler.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, started: time.Now()}

	cookie, err := sessionCookie(cfg, log)
	if err != nil {
		return nil, err
	}

	a.interrupts, a.ctx = crawler.NewInterrupter(cmd.Context(), log)
	a.stopSignals = a.interrupts.Listen()

	a.client = site.NewClient(cfg.Site, cfg.Network, log)
	a.client.SetCookie(cookie)
	if err := a.client.VerifySession(a.ctx); err != nil {
		a.close()
		return nil, err
	}

	a.store, err = openStore(a.ctx, cfg, log)
	if err != nil {
		a.close()
		return nil, err
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewServer(cfg.Metrics.ListenAddress, m, log)
		a.metrics.Start()
	}

	prompter := ui.NewPrompter(batchMode, log)
	opts := downloader.Options{
		MaxRetries:          cfg.Network.Retry,
		RetryWait:           cfg.Network.RetryWait,
		Verify:              cfg.Output.VerifyImage,
		SetLastModified:     cfg.Output.SetLastModified,
		AlwaysCheckFileSize: cfg.Traversal.AlwaysCheckFileSize,
	}
	if cfg.Output.CreateDownloadLists {
		opts.DownloadListDir = cfg.Output.RootDirectory
	}
	engine := downloader.New(a.client, opts, log)
	engine.SetObserver(m)
	engine.SetDiskFullHandler(func(path string, err error) {
		prompter.DiskFull(a.ctx, path, err)
	})

	a.tracker = ui.NewStatusTracker(os.Stdout)
	a.tracker.Quiet = quiet
	a.notifier = ui.NewNotifier(cfg.Notifications)

	a.crawler = crawler.New(cfg, crawler.Deps{
		Site:       a.client,
		Store:      a.store,
		Downloader: engine,
		Prompter:   prompter,
		Tracker:    a.tracker,
		Metrics:    m,
		Interrupts: a.interrupts,
		Logger:     log,
	})
	a.crawler.Resume = resume

	log.InfoWithFields("artsync starting", map[string]interface{}{
		"version": version,
		"run_id":  a.crawler.RunID(),
		"db":      cfg.Storage.Driver,
	})
	return a, nil
}

// report prints the summary for one finished command and drains the
// aggregator.
func (a *app) report(command string, failures []apperrors.Entry) {
	ui.PrintSummary(command, a.tracker.Totals(), failures, time.Since(a.started))
	logger.LogRunSummary(a.log, command, a.tracker.Totals(), len(failures), time.Since(a.started))
	a.tracker.ResetTotals()
	a.started = time.Now()
}

// finish closes the run and turns the aggregator state into the exit code
func (a *app) finish(runErr error) error {
	agg := a.crawler.Errors()
	code := agg.ExitCode()

	switch {
	case code == apperrors.ExitClean && runErr == nil:
		a.notifier.SendSuccess("artsync", "run completed")
		return nil
	case errors.Is(runErr, context.Canceled):
		ui.PrintWarning("run interrupted")
		if code == apperrors.ExitClean {
			code = apperrors.ExitRunErrors
		}
	}
	if fatal := agg.Fatal(); fatal != nil {
		ui.PrintError("run aborted", fatal)
		a.notifier.SendError("artsync", fatal.Error())
		return &exitError{code: code}
	}
	a.notifier.SendError("artsync", "run finished with errors")
	return &exitError{code: code}
}

func (a *app) close() {
	if a.stopSignals != nil {
		a.stopSignals()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.log.WithError(err).Warn("metrics endpoint shutdown failed")
		}
		cancel()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.WithError(err).Warn("failed to close database")
		}
	}
	if a.interrupts != nil {
		a.interrupts.Stop()
	}
}

// runCommand executes one crawl command end to end
func runCommand(cmd *cobra.Command, c crawler.Command) error {
	if err := c.Validate(); err != nil {
		return exitCode(apperrors.NewConfig(err))
	}
	a, err := newApp(cmd)
	if err != nil {
		return exitCode(err)
	}
	defer a.close()

	runErr := a.crawler.Execute(a.ctx, c)
	a.report(c.String(), a.crawler.Errors().Drain())
	return a.finish(runErr)
}

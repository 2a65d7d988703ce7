// Package crawler walks subjects page by page and downloads the artifacts
// they yield.
//
// A Crawler is built once per run. It owns the run id, the error
// aggregator and the collaborators (site client, artifact store, download
// engine) and processes subjects strictly one after another, artifacts in
// page order. Each traversal returns a Status describing why it stopped;
// errors are returned only for cancellation and for faults that abort the
// whole run, everything else lands in the aggregator.
//
// Basic usage:
//
//	c := crawler.New(cfg, crawler.Deps{
//		Site:       client,
//		Store:      store,
//		Downloader: engine,
//		Logger:     log,
//	})
//	status, err := c.RunMember(ctx, models.Subject{Kind: models.KindAccount, ID: "42"}, 1, 0)
//
// Commands decoded from the command line or a batch file are executed with
// Execute, which dispatches on the command kind.
package crawler

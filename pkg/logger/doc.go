// Package logger wraps zerolog behind a small interface used by every artsync
// component.
//
// A run builds one logger, attaches the run id, and hands it down explicitly:
//
//	log, err := logger.New(&cfg.Logging)
//	runLog := log.WithField("run_id", run.ID)
//	runLog.InfoWithFields("subject started", map[string]interface{}{
//	    "kind": "member",
//	    "subject": "42",
//	})
//
// The global logger (Initialize / GetLogger) exists for the command layer only.
// Library packages take a Logger argument and fall back to NewNopLogger.
package logger

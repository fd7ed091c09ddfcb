// Package database stores the collector's telemetry history in SQLite.
//
// It manages the connection (WAL mode, busy timeout, 0600 file permissions),
// applies the schema migrations embedded by the top-level migrations package,
// and exposes SampleStore for recording and querying received samples.
//
// # Usage
//
//	db, err := database.Open(cfg.Collector.History)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
//	store := database.NewSampleStore(db)
//	err = store.Record(ctx, topic, sample, time.Now())
//
// Migrations are named YYYYMMDD_HHMMSS_description.up.sql with an optional
// .down.sql. Each one is applied in its own transaction and recorded in
// schema_migrations.
package database

// Package pg wires PostgreSQL (pgx/v5) for the channel path store.
//
// Connect opens a *pgxpool.Pool with retries, Migrate applies goose
// migrations (optionally from an embedded fs.FS), WithTx wraps a unit of
// work in a transaction and Healthcheck adapts the pool into a probe.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	if err := pg.Migrate(ctx, pool, cfg, migrations.FS, log); err != nil {
//		return err
//	}
//
//	err = pg.WithTx(ctx, pool, func(tx pgx.Tx) error {
//		_, err := tx.Exec(ctx, "UPDATE channel_paths SET path = $1 WHERE id = $2", p, id)
//		return err
//	})
//
// Error helpers such as IsDuplicateKeyError classify *pgconn.PgError values.
package pg

// Package pg bootstraps PostgreSQL access on pgx/v5.
//
// Connect opens a *pgxpool.Pool from Config, retrying while the database
// comes up. Migrate applies goose migrations from an fs.FS, usually the
// embedded set in internal/db/migrations. Healthcheck returns a check for
// readiness endpoints.
//
//	var cfg pg.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil {
//		return err
//	}
package pg

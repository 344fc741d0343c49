// Package httpserver runs an http.Server bound to a context: Run and Serve
// block until the context is canceled and then shut down gracefully within
// Config.ShutdownTimeout. HealthHandler turns checks such as pg.Healthcheck
// into liveness and readiness endpoints.
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	srv := httpserver.New(cfg.HTTP, router, httpserver.WithLogger(log))
//	if err := srv.Run(ctx); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
package httpserver

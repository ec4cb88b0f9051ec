// Package logger builds the service's *slog.Logger and provides attribute
// helpers shared by the file service.
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Parse(cfg.Env), "teamfiles"),
//		logger.WithContextValue("request_id", middleware.RequestIDKey),
//	)
//	log.ErrorContext(ctx, "storage failure",
//		logger.Operation("upload"),
//		logger.Path(p.PhysicalPath),
//		logger.Error(err),
//	)
package logger

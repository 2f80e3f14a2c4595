// Package bootstrap assembles an opkit process from configuration.
//
// An App owns the logger, the model provider, the pipeline registry and
// builder, and optional OpenTelemetry exporters. Run serves the pipeline
// API until a shutdown signal; RunTask executes a finite task such as a
// single CLI invocation with the same setup and teardown.
//
//	cfg, _ := config.Load("opkit")
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
package bootstrap

// Package bootstrap wires configuration, the token store, the guard and the
// HTTP server into a runnable application and manages its lifecycle.
//
// Usage:
//
//	app, err := bootstrap.NewApp(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := app.Start(ctx); err != nil {
//	    app.Shutdown()
//	    log.Fatal(err)
//	}
//
//	app.WaitForShutdown()
//	app.Shutdown()
package bootstrap

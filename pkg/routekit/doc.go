// Package routekit assembles the request pipeline from configuration.
//
// An App owns the dispatcher, the middleware registry and every stateful
// policy behind it (cache, rate limiter, breakers, load balancer). Routes
// name their middleware; names are resolved against the registry once, at
// registration:
//
//	app, err := routekit.New(ctx, cfg, log)
//	app.Route(http.MethodGet, "/users/{id}", getUser, "request_id", "logging", "cache")
//	app.Start(ctx)
//	http.ListenAndServe(":8080", app.Handler())
package routekit

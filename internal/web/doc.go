// Package web defines the request and response values carried through the
// routekit pipeline, the error kinds shared by every layer, and the thin
// net/http adapter used at ingress.
//
// A Request is owned by the pipeline for its lifetime. A Response is treated
// as immutable once it is handed to the layer above; middleware that wants a
// different response builds a new one with Clone or the With* helpers.
package web

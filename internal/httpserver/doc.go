// Package httpserver runs the gateway's net/http server with sane timeouts
// and graceful shutdown.
package httpserver

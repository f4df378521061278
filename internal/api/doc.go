// Package api exposes the HTTP surface: a health endpoint, a REST
// device listing, and the websocket listener that attaches one protocol
// session to each connected client. Endpoints other than /healthz can be
// gated behind JWT bearer tokens.
package api

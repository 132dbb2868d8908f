// Package server hosts the Fiber HTTP service that fronts an origin site with
// the on-disk page cache. It owns the request middleware chain (recover,
// request id, path rule lookup, full-page cache), the rule set built from
// config, and the shared upstream HTTP client. Handlers for origin fetches and
// admin routes live in sibling packages and are injected through AppOptions.
package server

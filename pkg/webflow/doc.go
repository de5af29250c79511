// Package webflow exposes the registration, confirmation, and password
// recovery flows over HTTP. Handlers validate the same way the wizard and
// recovery controllers do, so a thin client can drive the whole flow with
// plain requests.
package webflow

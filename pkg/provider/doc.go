// Package provider defines the operation set this module consumes from the
// identity and storage provider, and ships LocalClient, a complete in-process
// implementation of it.
//
// The rest of the module only ever sees the Client interface: sign-up with
// identity metadata attached, password sign-in, the two recovery exchange
// paths (one-time authorization code and legacy token pair), user updates,
// and auth-state change subscriptions. Remote providers can be slotted in by
// implementing Client; LocalClient exists so the flows run end-to-end in
// tests, demos and self-hosted deployments without a managed backend.
package provider

// Package backchannel delivers ping and push notifications to client
// notification endpoints over HTTPS.
//
// Endpoints are registered by clients and therefore untrusted. Before any
// connection is opened the dispatcher resolves the endpoint host and
// rejects addresses in private, loopback, or link-local ranges, so a
// hostile registration cannot be used to probe the provider's network.
package backchannel

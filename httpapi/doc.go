// Package httpapi exposes a goIdentity Engine over HTTP with a chi router.
//
// Routes:
//
//	POST /login/{provider}                 credential fields as query parameters or a JSON object
//	POST /refresh                          refresh_token as a query parameter or JSON field
//	GET  /.well-known/jwks.json            published verification keys
//	GET  /.well-known/openid-configuration discovery document
//	GET  /userinfo                         bearer access token required
//	GET  /metrics                          mounted when Deps.Metrics is set
//
// A login links the provider identity to an existing user when the request
// carries auth_token (an access token of that user) together with
// link_to_existing_user=Yes.
//
// # What this package must NOT do
//
//   - Put engine error text in response bodies.
//   - Decide user identity itself; every decision belongs to the Engine.
package httpapi

// Package httpclient provides HTTP client utilities for the divideload harness.
//
// The httpclient package handles request construction against a name division
// service and the client used to execute them:
//   - POST /divide requests with a JSON body of names and an optional mode
//   - GET /health probes used for readiness polling and pre-flight checks
//   - Configurable timeouts with a transport sized for one worker
//
// # Request Building
//
// Use [NewRequestBuilder] with the service base URL:
//
//	builder, err := httpclient.NewRequestBuilder("http://localhost:8000")
//	if err != nil {
//		return err
//	}
//	req, err := builder.BuildDivide(ctx, names, "gbdt")
//
// An empty mode omits the field so the service falls back to its default.
//
// # HTTP Client
//
// [NewClient] creates a client with the given overall timeout. Each worker
// creates its own client; clients are not shared between workers:
//
//	client := httpclient.NewClient(30 * time.Second)
//	resp, err := client.Do(req)
//
// # Health Checks
//
// [CheckHealth] issues a single bounded GET /health and returns nil only for a
// 200 response. Non-200 responses are reported as [*StatusError].
package httpclient

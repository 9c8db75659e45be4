// Package ws implements the WebSocket hub for thermocert serve.
//
// Hub keeps a set of connected operator UIs up to date with the stored test
// results and alerts. It broadcasts on a fixed interval and, through Notify,
// right after an upload or an edit changes a result.
//
// Message format sent to clients:
//
//	{
//	  "event": "results",
//	  "data":  { /* same schema as GET /api/v1/snapshot */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level. The server mounts the hub at /ws/stream.
package ws

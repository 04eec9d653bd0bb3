// Package ws streams daemon lifecycle events over WebSocket.
//
// Every connection receives the events published on the daemon's bus,
// optionally filtered to one app with ?app=<name>.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - status: Request a status snapshot
//
// Message Types (Server → Client):
//   - system: Connection established
//   - event: Lifecycle event (app.installed, app.removed, instance.started,
//     instance.stopped, option.set)
//   - status: Status snapshot
//   - pong: Reply to ping
//   - error: Error occurred
//
// Example Usage:
//
//	handler := ws.NewHandler(ctx, bus, ctrl.Status, metrics, logger)
//	router.GET("/events", handler.HandleConnection)
package ws

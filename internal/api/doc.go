// Package api provides the HTTP REST API and WebSocket server for the
// ward dashboard.
//
// It exposes the device registry and the ward alarm to the nurse
// station UI, and streams live updates over WebSocket so the dashboard
// never polls.
//
//	                    ┌─────────────────┐
//	  dashboard ──HTTP──│   api.Server    │──reads──▶ device.Registry
//	                    │  (chi router)   │──calls──▶ alarm.Coordinator
//	  dashboard ──WS────│      Hub        │──push───▶ bracelet.Server
//	                    └─────────────────┘
//	                             ▲
//	                             │ events
//	                      notify.Dispatcher
//
// The Hub doubles as a notify.Sink: registry snapshots and alarm
// transitions arriving from the dispatcher are broadcast to every
// subscribed WebSocket client.
//
// Thread Safety: all exported methods are safe for concurrent use.
package api

// Package ws implements the real-time side of the relay.
//
// The package implements:
//   - Client: one WebSocket connection with its outbound queue
//   - Hub: the connection registry and broadcast engine
//   - Service: the process-wide relay state (hub, history log, start time)
//   - Handler: the per-connection lifecycle (upgrade, replay, welcome, pumps)
//   - Heartbeat: the periodic keepalive broadcast
//
// Key behaviors:
//   - History replay: a joining client receives the recent-message window
//     before its welcome frame
//   - Fanout: inbound payloads are relayed verbatim to every other open client
//   - Partial-failure isolation: one failing client never blocks the others
//   - Task acknowledgement: saveTask messages are acknowledged to the sender only
package ws

// Package wire encodes and decodes the Gatewave cloud protocol.
//
// Two surfaces share this package:
//
//   - the realtime feed channel, a graphql-ws dialect over WebSocket text
//     frames (connection_init/connection_ack, start/start_ack, data, ka,
//     error, stop)
//   - the GraphQL HTTPS API used for inventory queries and device commands
//
// # Frame Format
//
// Every channel frame is a JSON object with a type, an optional id and an
// optional payload:
//
//	{"type": "connection_init"}
//	{"type": "connection_ack"}
//	{"type": "ka"}
//	{"id": "<uuid>", "type": "start", "payload": {...}}
//	{"id": "<uuid>", "type": "start_ack"}
//	{"id": "<uuid>", "type": "data", "payload": {"data": {...}}}
//	{"id": "<uuid>", "type": "stop"}
//
// A start payload carries the GraphQL subscription document as a JSON-encoded
// string plus the authorization extension the feed service expects. The same
// authorization object, base64-encoded, rides in the WebSocket URL query when
// dialing.
//
// # Feeds
//
// The backend exposes two subscriptions: devicesStatesFeed, which streams
// full device state snapshots, and eventsFeed, which streams discrete event
// items identified by an eventId string.
package wire

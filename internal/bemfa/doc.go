// Package bemfa manages per-session MQTT connections to the Bemfa cloud
// broker, one independent connection per gateway session.
package bemfa

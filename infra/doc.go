// Package infra contains technical adapters such as the MQTT client,
// price API client, SQLite store and metrics exporters. These packages
// should depend only on the interfaces defined in the core packages.
package infra

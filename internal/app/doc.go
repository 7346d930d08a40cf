// Package app builds and owns the components of a store: the file area,
// the engine, the schema manager, the storage adapter, the syncer and the
// exporter. Commands and the MCP server share it.
package app

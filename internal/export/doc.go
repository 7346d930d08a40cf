// Package export dumps store tables as JSON or CSV.
//
// JSON output is one object keyed by table name, each holding an array of
// row objects. CSV output has one section per table:
//
//	# Table: workspaces
//	id,name,description,owner_id,created_at,updated_at
//	"ws1","Sales","","","2024-05-01T10:00:00Z","2024-05-01T10:00:00Z"
//
// Both formats are lossy: JSON columns come out as text and NULL is an empty
// CSV field. SaveToStore can frame the output with snappy.
package export

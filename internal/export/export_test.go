package export

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/modelstore/internal/capability"
	"github.com/dshills/modelstore/internal/engine"
	"github.com/dshills/modelstore/internal/filestore"
	"github.com/dshills/modelstore/internal/schema"
	"github.com/dshills/modelstore/internal/storage"
	"github.com/dshills/modelstore/pkg/types"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func setupTestExporter(t *testing.T) *Exporter {
	t.Helper()
	ctx := context.Background()
	e := engine.New(capability.New(engine.DriverName), quietLogger())
	res := e.Initialize(ctx, engine.Config{Mode: capability.StorageModeVolatile})
	require.NoError(t, res.Err)
	t.Cleanup(func() { _ = e.Terminate() })

	_, err := schema.NewManager(e, quietLogger()).RunMigrations(ctx)
	require.NoError(t, err)

	a := storage.New(e, quietLogger())
	desc := `Orders, "confirmed"`
	require.NoError(t, a.SaveWorkspace(ctx, &types.Workspace{ID: "ws1", Name: "Sales", Description: &desc}))
	require.NoError(t, a.SaveWorkspace(ctx, &types.Workspace{ID: "ws2", Name: "Ops"}))
	return New(e, quietLogger())
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = ParseFormat("csv")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("parquet")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExportJSON(t *testing.T) {
	e := setupTestExporter(t)

	out, err := e.Export(context.Background(), FormatJSON, "workspaces", "domains")
	require.NoError(t, err)

	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Len(t, doc, 2)
	assert.Empty(t, doc["domains"])
	require.Len(t, doc["workspaces"], 2)
	assert.Equal(t, "ws1", doc["workspaces"][0]["id"])
	assert.Equal(t, `Orders, "confirmed"`, doc["workspaces"][0]["description"])
	assert.Nil(t, doc["workspaces"][1]["description"])
}

func TestExportCSV(t *testing.T) {
	e := setupTestExporter(t)

	out, err := e.Export(context.Background(), FormatCSV, "workspaces", "domains")
	require.NoError(t, err)

	lines := strings.Split(string(out), "\n")
	assert.Equal(t, "# Table: workspaces", lines[0])
	assert.Equal(t, "id,name,description,owner_id,created_at,updated_at", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], `"ws1","Sales","Orders, ""confirmed""","",`), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], `"ws2","Ops","","",`), lines[3])
	assert.Equal(t, "", lines[4])
	assert.Equal(t, "# Table: domains", lines[5])
}

func TestCSV(t *testing.T) {
	out := CSV([]TableData{{
		Name:    "t",
		Columns: []string{"a", "b"},
		Rows:    []engine.Row{{"a": int64(1), "b": "x\ny"}, {"a": nil, "b": []byte("z")}},
	}})
	assert.Equal(t, "# Table: t\na,b\n\"1\",\"x\ny\"\n\"\",\"z\"\n", string(out))
}

func TestExport_UnknownTable(t *testing.T) {
	e := setupTestExporter(t)

	_, err := e.Export(context.Background(), FormatJSON, "no_such_table")
	assert.Error(t, err)

	_, err = e.Export(context.Background(), FormatJSON, "workspaces; DROP TABLE x")
	assert.Error(t, err)

	_, err = e.Export(context.Background(), Format("xml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExport_AllTables(t *testing.T) {
	e := setupTestExporter(t)

	data, err := e.Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, data, len(schema.TableNames()))
}

func TestSaveToStore(t *testing.T) {
	e := setupTestExporter(t)
	ctx := context.Background()
	store := filestore.New(t.TempDir(), "", quietLogger())
	t.Cleanup(func() { _ = store.Close() })

	plain, err := e.SaveToStore(ctx, store, "export", FormatJSON, false)
	require.NoError(t, err)
	assert.Equal(t, "export.json", plain)

	packed, err := e.SaveToStore(ctx, store, "export", FormatJSON, true)
	require.NoError(t, err)
	assert.Equal(t, "export.json.sz", packed)

	want, err := store.GetFile(plain)
	require.NoError(t, err)
	compressed, err := store.GetFile(packed)
	require.NoError(t, err)

	got, err := Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Decompress([]byte("not snappy"))
	assert.Error(t, err)
}

package query

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_PlaceholdersMatchParams(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("select placeholders equal params in count and order", prop.ForAll(
		func(values []string, inList []int, limit int) bool {
			b := Select("tables")
			for _, v := range values {
				b.OrWhere("name", "=", v)
			}
			b.WhereIn("id", Values(inList)...)
			b.Limit(limit)

			stmt, err := b.Build()
			if err != nil {
				return false
			}
			if strings.Count(stmt.SQL, "?") != len(stmt.Params) {
				return false
			}
			for i, v := range values {
				if stmt.Params[i] != v {
					return false
				}
			}
			return stmt.Params[len(stmt.Params)-1] == limit
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.Int()),
		gen.IntRange(1, 1000),
	))

	properties.Property("values never appear in rendered SQL", prop.ForAll(
		func(value string) bool {
			stmt, err := Update("tables").Set("name", value).Where("id", "=", value).Build()
			if err != nil {
				return false
			}
			return !strings.Contains(stmt.SQL, value) || value == ""
		},
		gen.RegexMatch(`[0-9]{3}'; DROP TABLE [a-z]{4}; --`),
	))

	properties.Property("insert renders one group per row", prop.ForAll(
		func(rows int) bool {
			b := Insert("tags").Columns("resource_type", "resource_id", "value")
			for i := 0; i < rows; i++ {
				b.AddRow("table", "t", i)
			}
			stmt, err := b.Build()
			if err != nil {
				return false
			}
			return strings.Count(stmt.SQL, "(?, ?, ?)") == rows && len(stmt.Params) == rows*3
		},
		gen.IntRange(1, 50),
	))

	properties.TestingRun(t)
}

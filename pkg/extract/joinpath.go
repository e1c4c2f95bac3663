package extract

import (
	"github.com/cuemby/caravan/pkg/types"
)

// DeriveJoinPath finds how to scope a table to the tenant when it does
// not carry the filter column itself: a BFS over declared FK parents,
// within the same store, until a parent carrying the column is found.
// The returned hops are ordered child-outward, ready for INNER JOIN
// rendering. ok is false when no path exists; such tables are
// reference data and are skipped, not failed.
func DeriveJoinPath(table types.TableSchema, filterKey string, analysis *types.SchemaAnalysis) ([]types.JoinHop, bool) {
	if table.HasColumn(filterKey) {
		return nil, true
	}
	if analysis == nil {
		return nil, false
	}

	type state struct {
		table *types.TableSchema
		path  []types.JoinHop
	}

	visited := map[string]bool{table.QualifiedName(): true}
	queue := []state{{table: &table}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, fk := range cur.table.ForeignKeys {
			// Multi-column FKs cannot be rendered as single-column hops
			if len(fk.FromColumns) != 1 {
				continue
			}
			parentStore, _, parentName := types.SplitQualifiedName(fk.ToTable)
			if parentStore != table.Store || visited[fk.ToTable] {
				continue
			}
			visited[fk.ToTable] = true

			parent := analysis.TableFor(fk.ToTable)
			if parent == nil {
				continue
			}

			path := make([]types.JoinHop, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			path = append(path, types.JoinHop{Table: parentName, FKColumn: fk.FromColumns[0]})

			if parent.HasColumn(filterKey) {
				return path, true
			}
			queue = append(queue, state{table: parent, path: path})
		}
	}
	return nil, false
}

package store

import (
	"fmt"
	"strings"
)

// Cypher cannot parameterize labels, relationship types, or pattern
// depths, so those are interpolated after sanitization. Identifiers
// are restricted to word characters; anything else is stripped.

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NeighborhoodNodesQuery returns the distinct nodes reachable from the
// tenant root within maxDepth, the root itself included (zero-length
// path).
func NeighborhoodNodesQuery(rootLabel string, maxDepth int) string {
	return fmt.Sprintf(`MATCH (d:%s {id: $tenant})-[*0..%d]-(n)
WITH DISTINCT n
RETURN id(n) AS internal_id, labels(n) AS labels, properties(n) AS props`,
		sanitizeIdent(rootLabel), maxDepth)
}

// NeighborhoodEdgesQuery returns the distinct edges whose endpoints
// both lie in the tenant neighborhood
func NeighborhoodEdgesQuery(rootLabel string, maxDepth int) string {
	return fmt.Sprintf(`MATCH (d:%s {id: $tenant})-[*0..%d]-(n)
WITH collect(DISTINCT id(n)) AS ids
MATCH (a)-[r]->(b)
WHERE id(a) IN ids AND id(b) IN ids
RETURN DISTINCT id(a) AS start_id, type(r) AS type, id(b) AS end_id, properties(r) AS props`,
		sanitizeIdent(rootLabel), maxDepth)
}

// MergeNodeQuery merges a node on its stable id property and replaces
// its properties
func MergeNodeQuery(labels []string) string {
	clean := make([]string, 0, len(labels))
	for _, l := range labels {
		if s := sanitizeIdent(l); s != "" {
			clean = append(clean, s)
		}
	}
	labelExpr := ""
	if len(clean) > 0 {
		labelExpr = ":" + strings.Join(clean, ":")
	}
	return fmt.Sprintf("MERGE (n%s {id: $id}) SET n = $props", labelExpr)
}

// MergeEdgeQuery merges an edge between two loaded nodes and replaces
// its properties. Endpoints are matched by their id property.
func MergeEdgeQuery(relType string) string {
	return fmt.Sprintf(`MATCH (a {id: $start_id})
MATCH (b {id: $end_id})
MERGE (a)-[r:%s]->(b)
SET r = $props`, sanitizeIdent(relType))
}

// DeleteTenantQuery detach-deletes the tenant neighborhood
func DeleteTenantQuery(rootLabel string, maxDepth int) string {
	return fmt.Sprintf(`MATCH (d:%s {id: $tenant})-[*0..%d]-(n)
WITH DISTINCT n
DETACH DELETE n`,
		sanitizeIdent(rootLabel), maxDepth)
}

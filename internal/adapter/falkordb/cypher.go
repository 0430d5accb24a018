package falkordb

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/provgraph/provgraph/internal/domain/graph"
)

// One event becomes one Cypher query: MERGE clauses joined by a WITH so
// FalkorDB executes them as a single atomic request with no MATCH after an
// updating clause.
const clauseSeparator = "\nWITH 1 AS _\n"

// buildEventQuery renders a change-set as a single upsert query. Clause
// order and property order are deterministic, so replaying an event sends a
// byte-identical query.
func buildEventQuery(cs *graph.ChangeSet) string {
	clauses := make([]string, 0, len(cs.Nodes)+len(cs.Edges))
	for _, n := range cs.Nodes {
		clauses = append(clauses, mergeNode(n))
	}
	for _, e := range cs.Edges {
		clauses = append(clauses, mergeEdge(e))
	}
	return strings.Join(clauses, clauseSeparator)
}

// mergeNode upserts a node by name. MERGE matches or creates; SET n += then
// merges properties last-writer-wins without clearing others.
func mergeNode(n graph.Node) string {
	props := make(map[string]any, len(n.Props)+2)
	for k, v := range n.Props {
		props[k] = v
	}
	props[graph.PropName] = n.Key
	props[graph.PropBaseType] = string(n.Base)
	return fmt.Sprintf("MERGE (n:%s {name: %s}) SET n += %s",
		sanitizeLabel(n.Label), cypherString(n.Key), cypherMap(props))
}

// mergeEdge upserts both endpoints by name, then the relationship. Role is
// part of the MERGE pattern so distinct roles between the same endpoints
// stay distinct edges.
func mergeEdge(e graph.Edge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "MERGE (a:%s {name: %s}) MERGE (b:%s {name: %s})",
		sanitizeLabel(e.From.Label), cypherString(e.From.Key),
		sanitizeLabel(e.To.Label), cypherString(e.To.Key))
	if e.Role != "" {
		fmt.Fprintf(&b, " MERGE (a)-[r:%s {role: %s}]->(b)",
			sanitizeLabel(e.Type), cypherString(e.Role))
	} else {
		fmt.Fprintf(&b, " MERGE (a)-[r:%s]->(b)", sanitizeLabel(e.Type))
	}

	props := make(map[string]any, len(e.Props)+2)
	for k, v := range e.Props {
		props[k] = v
	}
	props[graph.PropRelation] = e.Type
	if e.Label != "" {
		props[graph.PropLabel] = e.Label
	}
	fmt.Fprintf(&b, " SET r += %s", cypherMap(props))
	return b.String()
}

// cypherMap renders a property map literal with stable key ordering.
func cypherMap(props map[string]any) string {
	if len(props) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, cypherKey(k)+": "+cypherValue(props[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func cypherKey(key string) string {
	if isSafeIdentifier(key) {
		return key
	}
	return "`" + strings.ReplaceAll(key, "`", "``") + "`"
}

func isSafeIdentifier(value string) bool {
	if value == "" {
		return false
	}
	for i, c := range value {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// sanitizeLabel strips anything outside [A-Za-z0-9_] from labels and
// relationship types, which cannot be parameterized in Cypher.
func sanitizeLabel(value string) string {
	var b strings.Builder
	for _, c := range value {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			b.WriteRune(c)
		}
	}
	if b.Len() == 0 {
		return "Node"
	}
	return b.String()
}

// cypherValue renders a Go value as a Cypher literal. Scalars map directly;
// string slices become list literals; anything structured is stored as a
// JSON string since FalkorDB properties hold scalars and scalar lists only.
func cypherValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case string:
		return cypherString(val)
	case []string:
		parts := make([]string, 0, len(val))
		for _, s := range val {
			parts = append(parts, cypherString(s))
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return cypherString(fmt.Sprintf("%v", val))
		}
		return cypherString(string(raw))
	}
}

// cypherString quotes via JSON encoding, which matches Cypher's
// double-quoted string escaping.
func cypherString(s string) string {
	raw, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(raw)
}

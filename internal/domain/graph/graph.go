package graph

// NodeRef names a node by key and label, enough for an edge endpoint to
// MERGE the node if the referenced event was never seen.
type NodeRef struct {
	Key   string
	Label string
}

// Node is a node upsert: identity key, label, base class and the property
// set to merge last-writer-wins into the stored node.
type Node struct {
	Key   string
	Label string
	Base  BaseType
	Props map[string]any
}

// Edge is an edge upsert. Identity is (From, To, Type, Role); Label is the
// semantic overlay and lives in the property set alongside Props.
type Edge struct {
	Type  string
	Label string
	From  NodeRef
	To    NodeRef
	Role  string
	Props map[string]any
}

// identityKey distinguishes edges sharing endpoints and type by role.
func (e Edge) identityKey() string {
	return e.From.Key + "|" + e.To.Key + "|" + e.Type + "|" + e.Role
}

// ChangeSet is the normalizer's output for one event: the node and edge
// upserts to apply atomically. Order is deterministic (first-merge order is
// kept); merging the same node or edge twice unions the property sets with
// the later write winning per property.
type ChangeSet struct {
	Nodes []Node
	Edges []Edge

	nodeIndex map[string]int
	edgeIndex map[string]int
}

// NewChangeSet returns an empty change-set.
func NewChangeSet() *ChangeSet {
	return &ChangeSet{
		nodeIndex: make(map[string]int),
		edgeIndex: make(map[string]int),
	}
}

// MergeNode records a node upsert. A repeated key folds into the earlier
// entry, keeping its position.
func (cs *ChangeSet) MergeNode(n Node) {
	if i, ok := cs.nodeIndex[n.Key]; ok {
		mergeProps(cs.Nodes[i].Props, n.Props)
		return
	}
	if n.Props == nil {
		n.Props = make(map[string]any)
	}
	cs.nodeIndex[n.Key] = len(cs.Nodes)
	cs.Nodes = append(cs.Nodes, n)
}

// MergeEdge records an edge upsert keyed by (from, to, type, role).
func (cs *ChangeSet) MergeEdge(e Edge) {
	k := e.identityKey()
	if i, ok := cs.edgeIndex[k]; ok {
		mergeProps(cs.Edges[i].Props, e.Props)
		if e.Label != "" {
			cs.Edges[i].Label = e.Label
		}
		return
	}
	if e.Props == nil {
		e.Props = make(map[string]any)
	}
	cs.edgeIndex[k] = len(cs.Edges)
	cs.Edges = append(cs.Edges, e)
}

// Empty reports whether the change-set carries no upserts.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Nodes) == 0 && len(cs.Edges) == 0
}

func mergeProps(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

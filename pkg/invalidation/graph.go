package invalidation

import (
	"github.com/mlg-clan/platform-core/pkg/cache"
)

// CascadeGraph captures cross-cache dependencies: when a namespace is
// invalidated, the graph contributes follow-on actions for the caches derived
// from it. The user and clan namespaces reference each other, so traversal
// keeps a visited set.
type CascadeGraph struct {
	edges map[string][]Action
}

// DefaultCascadeGraph returns the dependency graph between cache namespaces
func DefaultCascadeGraph() *CascadeGraph {
	return &CascadeGraph{edges: map[string][]Action{
		cache.NamespaceUser: {
			{Namespace: cache.NamespaceClan, Pattern: "members/{clanId}"},
			{Namespace: cache.NamespaceContent, Pattern: "by-user/{userId}"},
		},
		cache.NamespaceClan: {
			{Namespace: cache.NamespaceUser, Pattern: "profile/{userId}"},
			{Namespace: cache.NamespaceLeaderboard, Pattern: "clans"},
		},
		cache.NamespaceContent: {
			{Namespace: cache.NamespaceContent, Pattern: "trending"},
			{Namespace: cache.NamespaceContent, Pattern: "search"},
		},
	}}
}

// Expand walks the graph from the initial actions and returns the closed set
// of actions to execute. Each (namespace, pattern) node is visited at most
// once, which terminates the user/clan cycle and keeps the result free of
// duplicates.
func (g *CascadeGraph) Expand(initial []resolvedAction, bindings map[string][]string) []resolvedAction {
	visited := make(map[string]struct{}, len(initial)*2)
	result := make([]resolvedAction, 0, len(initial)*2)

	queue := append([]resolvedAction(nil), initial...)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		if _, seen := visited[node.key()]; seen {
			continue
		}
		visited[node.key()] = struct{}{}
		result = append(result, node)

		for _, edge := range g.edges[node.Namespace] {
			queue = append(queue, resolve(edge, bindings)...)
		}
	}
	return result
}

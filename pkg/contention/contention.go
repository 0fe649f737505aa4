// Package contention detects which agents are competing for which
// resources in a round and groups them into contention groups by connected
// components of the bipartite agent-resource graph, the way the teacher's
// coalition package groups services sharing a trace path before running
// bargaining over each group independently.
package contention

import (
	"fmt"
	"sort"

	"k8s.io/klog/v2"

	"arbiter/pkg/resource"
)

// AgentDemand is the slice of an agent's record the detector needs: its
// identity and its min/ideal request per resource kind.
type AgentDemand struct {
	ID    string
	Min   map[resource.Kind]int64
	Ideal map[resource.Kind]int64
}

// Group is a contention group: agents connected by at least one shared
// contested resource, the set of resource kinds they contest, the residual
// capacity available per contested kind, and a severity score.
type Group struct {
	ID        string
	Members   []AgentDemand
	Resources []resource.Kind

	// Available is the residual capacity per contested resource kind. In the
	// single-round model this equals the pool's available quantity, since
	// there is no prior allocation within the round to subtract.
	Available map[resource.Kind]int64

	// Severity is max over contested kinds of aggregate_ideal/available.
	Severity float64
}

// Infeasibility names a binding resource where a group's minimums alone
// exceed the available quantity.
type Infeasibility struct {
	GroupID  string
	Resource resource.Kind
	Required int64
	Available int64
}

func (i *Infeasibility) Error() string {
	return fmt.Sprintf("contention: group %s needs %d of %s but only %d available",
		i.GroupID, i.Required, i.Resource, i.Available)
}

// Detect partitions agents into contention groups per resource kind k: k is
// contested when Σ ideal(k) over all agents exceeds available(k). Agents
// sharing a contested resource are merged into the same group via connected
// components of the bipartite agent-resource graph. Uncontended agents are
// not returned in any group — callers grant them their full ideal request.
func Detect(agents []AgentDemand, available map[resource.Kind]int64) ([]*Group, []*Infeasibility) {
	contested := make(map[resource.Kind]bool)
	for _, k := range resource.All() {
		var aggregate int64
		for _, a := range agents {
			aggregate += a.Ideal[k]
		}
		if aggregate > available[k] {
			contested[k] = true
		}
	}
	if len(contested) == 0 {
		return nil, nil
	}
	klog.V(4).InfoS("contested resources detected", "kinds", len(contested))

	uf := newUnionFind()
	resourceNode := func(k resource.Kind) string { return "r:" + k.String() }
	agentNode := func(id string) string { return "a:" + id }

	contestedAgents := make(map[string]AgentDemand)
	for _, a := range agents {
		for k := range contested {
			if a.Ideal[k] > 0 {
				uf.union(agentNode(a.ID), resourceNode(k))
				contestedAgents[a.ID] = a
			}
		}
	}

	clusters := make(map[string][]AgentDemand)
	clusterResources := make(map[string]map[resource.Kind]bool)
	ids := make([]string, 0, len(contestedAgents))
	for id := range contestedAgents {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		a := contestedAgents[id]
		root := uf.find(agentNode(id))
		clusters[root] = append(clusters[root], a)
		if clusterResources[root] == nil {
			clusterResources[root] = make(map[resource.Kind]bool)
		}
		for k := range contested {
			if a.Ideal[k] > 0 {
				clusterResources[root][k] = true
			}
		}
	}

	roots := make([]string, 0, len(clusters))
	for root := range clusters {
		roots = append(roots, root)
	}
	sort.Strings(roots)

	var groups []*Group
	var infeasibilities []*Infeasibility
	for i, root := range roots {
		members := clusters[root]
		sort.Slice(members, func(a, b int) bool { return members[a].ID < members[b].ID })

		kinds := make([]resource.Kind, 0, len(clusterResources[root]))
		for k := range clusterResources[root] {
			kinds = append(kinds, k)
		}
		sort.Slice(kinds, func(a, b int) bool { return kinds[a] < kinds[b] })

		g := &Group{
			ID:        fmt.Sprintf("group-%d", i),
			Members:   members,
			Resources: kinds,
			Available: make(map[resource.Kind]int64, len(kinds)),
		}

		var severity float64
		for _, k := range kinds {
			g.Available[k] = available[k]

			var aggregateMin, aggregateIdeal int64
			for _, m := range members {
				aggregateMin += m.Min[k]
				aggregateIdeal += m.Ideal[k]
			}
			if aggregateMin > available[k] {
				infeasibilities = append(infeasibilities, &Infeasibility{
					GroupID:   g.ID,
					Resource:  k,
					Required:  aggregateMin,
					Available: available[k],
				})
			}
			if available[k] > 0 {
				if s := float64(aggregateIdeal) / float64(available[k]); s > severity {
					severity = s
				}
			}
		}
		g.Severity = severity
		groups = append(groups, g)
	}

	klog.V(4).InfoS("contention groups formed", "groups", len(groups), "infeasibilities", len(infeasibilities))
	return groups, infeasibilities
}

type unionFind struct {
	parent map[string]string
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[string]string)}
}

func (u *unionFind) find(x string) string {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
	}
	if u.parent[x] != x {
		u.parent[x] = u.find(u.parent[x])
	}
	return u.parent[x]
}

func (u *unionFind) union(x, y string) {
	rx, ry := u.find(x), u.find(y)
	if rx != ry {
		u.parent[rx] = ry
	}
}

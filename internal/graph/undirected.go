package graph

// Undirected keeps only the links whose reverse link is also present, and
// only the pages that are an endpoint of a kept link. Both directions of a
// reciprocal pair are kept.
//
// The result is not guaranteed to be connected: pages that were only
// reachable through one-way links drop out and can split the graph.
func Undirected(s Snapshot) Snapshot {
	keep := make(map[ID]struct{})
	out := Snapshot{}

	for _, l := range s.Links {
		if !s.HasLink(l.Target, l.Source) {
			continue
		}
		out.Links = append(out.Links, l)
		keep[l.Source] = struct{}{}
		keep[l.Target] = struct{}{}
	}

	for _, p := range s.Pages {
		if _, ok := keep[p.ID]; ok {
			out.Pages = append(out.Pages, p)
		}
	}

	return out
}

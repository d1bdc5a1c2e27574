package engine

// Addr identifies a peer engine instance in a cluster. This package
// carries no membership or transport logic of its own — spec.md §1
// names clustering an explicit Non-goal beyond a stateless route-rewrite
// helper, so Addr is just enough of a type for RewriteRoutes to take a
// destination.
type Addr string

// RouteRewrite is one route entry being relayed to a peer: the call id
// it applies to and the callto string to install there.
type RouteRewrite struct {
	ID     string
	Callto string
}

// RewriteRoutes translates routes for delivery to peer. It holds no
// state of its own and does not perform any actual delivery; a real
// cluster transport would carry the result over the wire, which is out
// of scope here.
func RewriteRoutes(peer Addr, routes []RouteRewrite) []RouteRewrite {
	out := make([]RouteRewrite, len(routes))
	for i, r := range routes {
		out[i] = RouteRewrite{ID: string(peer) + "/" + r.ID, Callto: r.Callto}
	}
	return out
}

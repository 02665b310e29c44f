package scenario

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/talgya/freightworld/internal/cargo"
	"github.com/talgya/freightworld/internal/engine"
)

// SeedFlows computes shortest paths over the scenario's link network and
// credits an initial flow share at every station along the way: cargo
// from origin o waiting at station s gets a share toward the next
// station of the o-to-destination path. This static seeding stands in
// for the online link-graph scheduler; the tables then live or die by
// fresh flow and invalidation passes.
func SeedFlows(cfg *Config, w *engine.World) {
	connGraph := buildConnGraph(cfg)

	// Dijkstra trees are cached per origin; each tree serves every
	// destination of that origin.
	trees := make(map[uint16]path.Shortest)

	for _, src := range cfg.Stations {
		for _, prod := range src.Produces {
			ct, _ := cfg.cargoIndex(prod.Cargo)
			amount := uint32(prod.Base)
			if amount == 0 {
				amount = 1
			}
			tree, ok := trees[src.ID]
			if !ok {
				tree = path.DijkstraFrom(simple.Node(int64(src.ID)), connGraph)
				trees[src.ID] = tree
			}
			for _, dst := range cfg.Stations {
				if dst.ID == src.ID || !acceptsCargo(cfg, dst, prod.Cargo) {
					continue
				}
				nodes, _ := tree.To(int64(dst.ID))
				if len(nodes) < 2 {
					slog.Warn("no path for seeded flow",
						"from", src.Name, "to", dst.Name, "cargo", prod.Cargo)
					continue
				}
				seq := convertNodeSeq(nodes)
				origin := cargo.StationID(src.ID)
				for i := 0; i+1 < len(seq); i++ {
					at := w.Stations[seq[i]]
					at.Goods[ct].Flows.AddFlow(origin, seq[i+1], amount)
				}
			}
		}
	}
}

// buildConnGraph converts the scenario links into a gonum weighted
// undirected graph keyed by station ID. Links without an explicit weight
// use the manhattan distance between the stations.
func buildConnGraph(cfg *Config) graph.Graph {
	g := simple.NewWeightedUndirectedGraph(0, math.Inf(1))
	tiles := make(map[uint16]cargo.TileXY, len(cfg.Stations))
	for _, st := range cfg.Stations {
		tiles[st.ID] = cargo.TileXY{X: st.X, Y: st.Y}
	}
	for _, l := range cfg.Links {
		w := l.Weight
		if w <= 0 {
			w = float64(cargo.DistanceManhattan(tiles[l.A], tiles[l.B]))
			if w == 0 {
				w = 1
			}
		}
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(int64(l.A)),
			T: simple.Node(int64(l.B)),
			W: w,
		})
	}
	return g
}

func convertNodeSeq(nodes []graph.Node) []cargo.StationID {
	out := make([]cargo.StationID, len(nodes))
	for i, n := range nodes {
		out[i] = cargo.StationID(n.ID())
	}
	return out
}

func acceptsCargo(cfg *Config, st StationDef, name string) bool {
	for _, c := range st.Accepts {
		if c == name {
			return true
		}
	}
	return false
}

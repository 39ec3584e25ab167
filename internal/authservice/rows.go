package authservice

import (
	"github.com/discretgraph/graphauth/internal/crypto"
	"github.com/discretgraph/graphauth/internal/graph"
	"github.com/discretgraph/graphauth/internal/mutation"
)

// collectRows walks a validated InsertEntity tree and returns every
// pending row plus the parent-child edge implied by each SubNodes
// entry, signed by signer. Validation has already signed every
// PendingRow in place; this pass only needs to mint the edges that
// connect them, since InsertEntity's SubNodes map IS the edge label.
func collectRows(signer crypto.Signer, roots []*mutation.InsertEntity) ([]*graph.Node, []*graph.Edge, []*graph.EdgeDeletionEntry, error) {
	var nodes []*graph.Node
	var edges []*graph.Edge
	var edgeDeletions []*graph.EdgeDeletionEntry

	var walk func(ie *mutation.InsertEntity) error
	walk = func(ie *mutation.InsertEntity) error {
		if ie.PendingRow != nil {
			nodes = append(nodes, ie.PendingRow)
		}
		edgeDeletions = append(edgeDeletions, ie.EdgeDeletionsLog...)

		for label, children := range ie.SubNodes {
			for _, child := range children {
				if ie.PendingRow != nil || ie.TargetID != nil {
					src := ie.TargetID
					if ie.PendingRow != nil {
						src = ie.PendingRow.ID
					}
					e := &graph.Edge{Src: src, Label: label, Dest: child.TargetID, CDate: child.Date}
					if err := e.Sign(signer); err != nil {
						return err
					}
					edges = append(edges, e)
				}
				if err := walk(child); err != nil {
					return err
				}
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, nil, nil, err
		}
	}
	return nodes, edges, edgeDeletions, nil
}

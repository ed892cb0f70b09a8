package bizmatch

import (
	"fmt"
	"math"
)

// TreeNode is one node of a regression tree. Leaf nodes carry Value and no
// children; split nodes route on Feature < Threshold.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Value     float64   `json:"value"`
}

// IsLeaf reports whether the node has no children.
func (n *TreeNode) IsLeaf() bool {
	return n.Left == nil && n.Right == nil
}

func (n *TreeNode) eval(x []float64) float64 {
	node := n
	for !node.IsLeaf() {
		if node.Feature >= 0 && node.Feature < len(x) && x[node.Feature] < node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Value
}

// validate walks the tree: every node is either a leaf or a split with both
// children and a feature index inside the vector.
func (n *TreeNode) validate(featureDim int) error {
	if n.IsLeaf() {
		return nil
	}
	if n.Left == nil || n.Right == nil {
		return fmt.Errorf("split node on feature %d is missing a child", n.Feature)
	}
	if n.Feature < 0 || n.Feature >= featureDim {
		return fmt.Errorf("split node feature %d outside vector of %d", n.Feature, featureDim)
	}
	if err := n.Left.validate(featureDim); err != nil {
		return err
	}
	return n.Right.validate(featureDim)
}

// TreeEnsemble is a boosted ensemble over regression trees with a sigmoid
// link: probability = sigmoid(base_score + sum of tree outputs).
type TreeEnsemble struct {
	BaseScore float64     `json:"base_score"`
	Trees     []*TreeNode `json:"trees"`
}

// Validate rejects ensembles that cannot score a vector of featureDim
// entries without panicking: empty ensembles, half-built split nodes, and
// feature indexes outside the vector.
func (m *TreeEnsemble) Validate(featureDim int) error {
	if len(m.Trees) == 0 {
		return fmt.Errorf("ensemble has no trees")
	}
	for i, tree := range m.Trees {
		if tree == nil {
			return fmt.Errorf("tree %d is null", i)
		}
		if err := tree.validate(featureDim); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

// PredictProba scores one feature vector, returning a probability in [0,1].
func (m *TreeEnsemble) PredictProba(x []float64) float64 {
	margin := m.BaseScore
	for _, tree := range m.Trees {
		margin += tree.eval(x)
	}
	return sigmoid(margin)
}

func sigmoid(v float64) float64 {
	return 1.0 / (1.0 + math.Exp(-v))
}

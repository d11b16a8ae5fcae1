package ml

import (
	"errors"
	"fmt"
	"math"
)

// TreeNode is one node of a fitted tree in pre-order layout. Leaves have Feature -1 and
// carry per-class sample weights in Value.
type TreeNode struct {
	Feature   int        `json:"feature"`
	Threshold float64    `json:"threshold"`
	Left      int        `json:"left"`
	Right     int        `json:"right"`
	Value     [2]float64 `json:"value"`
}

func (n TreeNode) IsLeaf() bool {
	return n.Feature < 0
}

type DecisionTree struct {
	nodes []TreeNode
}

func NewDecisionTree(nodes []TreeNode) (*DecisionTree, error) {
	if err := validateNodes(nodes); err != nil {
		return nil, err
	}
	return &DecisionTree{nodes: append([]TreeNode(nil), nodes...)}, nil
}

func (dt *DecisionTree) Predict(normalized FeatureVector) (int, [2]float64) {
	proba := dt.leafProba(normalized)
	return argmax2(proba), proba
}

func (dt *DecisionTree) leafProba(x FeatureVector) [2]float64 {
	idx := 0
	for {
		node := dt.nodes[idx]
		if node.IsLeaf() {
			total := node.Value[0] + node.Value[1]
			return [2]float64{node.Value[0] / total, node.Value[1] / total}
		}
		if x[node.Feature] <= node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
	}
}

// validateNodes guarantees that traversal terminates and never indexes out of range:
// children always sit after their parent. Leaf weights must have a finite positive total
// so every leaf normalizes to probabilities summing to 1.
func validateNodes(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf() {
			total := node.Value[0] + node.Value[1]
			if math.IsNaN(total) || math.IsInf(total, 0) {
				return fmt.Errorf("leaf %d: class weights %v are not finite", i, node.Value)
			}
			if node.Value[0] < 0 || node.Value[1] < 0 || total <= 0 {
				return fmt.Errorf("leaf %d has no class weights", i)
			}
			continue
		}
		if node.Feature >= FeatureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.Feature)
		}
		if node.Left <= i || node.Left >= len(nodes) || node.Right <= i || node.Right >= len(nodes) {
			return fmt.Errorf("node %d: invalid children %d/%d", i, node.Left, node.Right)
		}
	}
	return nil
}

// RandomForest averages the class probabilities of its trees.
type RandomForest struct {
	trees []*DecisionTree
}

func NewRandomForest(trees []*DecisionTree) (*RandomForest, error) {
	if len(trees) == 0 {
		return nil, errors.New("forest has no trees")
	}
	return &RandomForest{trees: trees}, nil
}

func (f *RandomForest) Predict(normalized FeatureVector) (int, [2]float64) {
	var proba [2]float64
	for _, tree := range f.trees {
		p := tree.leafProba(normalized)
		proba[0] += p[0]
		proba[1] += p[1]
	}
	n := float64(len(f.trees))
	proba[0] /= n
	proba[1] /= n
	return argmax2(proba), proba
}

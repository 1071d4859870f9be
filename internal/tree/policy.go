package tree

// QuotaPolicy decides whether a tree may grow. Both checks return true when
// the addition is blocked.
type QuotaPolicy interface {
	// CheckDepth is asked with the would-be parent of a new node.
	CheckDepth(parent *Node, professional bool) bool
	// CheckFileCount is asked with the tree root.
	CheckFileCount(root *Node, professional bool) bool
}

// Limits caps one plan. Negative values mean unlimited.
type Limits struct {
	MaxDepth int
	MaxFiles int
}

// Unlimited imposes no caps.
var Unlimited = Limits{MaxDepth: -1, MaxFiles: -1}

// LimitPolicy is a QuotaPolicy backed by fixed per-plan limits.
type LimitPolicy struct {
	Free         Limits
	Professional Limits
}

func (p LimitPolicy) limits(professional bool) Limits {
	if professional {
		return p.Professional
	}
	return p.Free
}

// CheckDepth blocks when a child of parent would sit deeper than MaxDepth.
func (p LimitPolicy) CheckDepth(parent *Node, professional bool) bool {
	limit := p.limits(professional).MaxDepth
	if limit < 0 || parent == nil {
		return false
	}
	return parent.Depth()+1 > limit
}

// CheckFileCount blocks when the tree already holds MaxFiles nodes.
func (p LimitPolicy) CheckFileCount(root *Node, professional bool) bool {
	limit := p.limits(professional).MaxFiles
	if limit < 0 || root == nil {
		return false
	}
	return TotalFileCount(root) >= limit
}

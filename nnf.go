package taintcore

// ToNNF rewrites a boolean-skeleton AstNode into negation-normal form,
// pushing negations down to relational leaves instead of leaving LNot
// nodes in the tree. expectedPolarity false asks for the negation of
// node; true returns node's own NNF.
func ToNNF(expectedPolarity bool, node *AstNode) *AstNode {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case LNot:
		return ToNNF(!expectedPolarity, node.Children[0])
	case LAnd:
		lhs := ToNNF(expectedPolarity, node.Children[0])
		rhs := ToNNF(expectedPolarity, node.Children[1])
		if expectedPolarity {
			return NewLAndNode(lhs, rhs)
		}
		return NewLOrNode(lhs, rhs)
	case LOr:
		lhs := ToNNF(expectedPolarity, node.Children[0])
		rhs := ToNNF(expectedPolarity, node.Children[1])
		if expectedPolarity {
			return NewLOrNode(lhs, rhs)
		}
		return NewLAndNode(lhs, rhs)
	case Bool:
		v, _ := IsBoolConstant(node)
		return NewBoolNode(v == expectedPolarity)
	default:
		if !node.Kind.IsRelational() {
			// Not a recognised boolean-skeleton shape; leave as-is so the
			// caller can detect and drop the branch downstream.
			return node
		}
		if expectedPolarity {
			return node
		}
		negated := *node
		negated.Kind = NegateComparison(node.Kind)
		return &negated
	}
}

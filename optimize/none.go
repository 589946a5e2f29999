package optimize

// None is an optimizer which computes the starting likelihood and
// exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which computes initial likelihood only.
func NewNone() (n *None) {
	n = &None{}
	n.method = "none"
	return
}

// Run computes the likelihood.
func (n *None) Run(iterations int) {
	defer n.finish()
	n.l = n.likelihood(n.Optimizable)
	n.saveMax(n.parameters, n.l)
	n.converged = true
	n.PrintHeader(n.parameters)
	n.PrintLine(n.parameters, n.l)
}

// New returns the optimizer for the method name: simplex, lbfgsb,
// bfgs, lbfgs, neldermead or none.
func New(method string) (Optimizer, error) {
	switch method {
	case "simplex":
		return NewDS(), nil
	case "lbfgsb":
		return NewLBFGSB(), nil
	case "none":
		return NewNone(), nil
	}
	return NewGonum(method)
}

// Methods lists all the supported optimizer names.
func Methods() []string {
	return append([]string{"simplex", "lbfgsb", "none"}, GonumMethods...)
}

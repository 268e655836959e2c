package predicate

// Cond is a tri-state predicate: known true, known false, or a function that
// needs evaluation. Combining known conditions is resolved structurally, so
// determined branches are never evaluated.
type Cond[T any] struct {
	state condState
	fn    func(T) bool
}

type condState uint8

const (
	stateEval condState = iota
	stateTrue
	stateFalse
)

// True is the condition that always holds.
func True[T any]() Cond[T] { return Cond[T]{state: stateTrue} }

// False is the condition that never holds.
func False[T any]() Cond[T] { return Cond[T]{state: stateFalse} }

// Known returns True or False.
func Known[T any](b bool) Cond[T] {
	if b {
		return True[T]()
	}
	return False[T]()
}

// Eval wraps fn as a condition that needs evaluation.
func Eval[T any](fn func(T) bool) Cond[T] { return Cond[T]{state: stateEval, fn: fn} }

// Known reports the fixed value of c, if any.
func (c Cond[T]) Known() (value, known bool) {
	switch c.state {
	case stateTrue:
		return true, true
	case stateFalse:
		return false, true
	}
	return false, false
}

// Evaluate tests x.
func (c Cond[T]) Evaluate(x T) bool {
	switch c.state {
	case stateTrue:
		return true
	case stateFalse:
		return false
	}
	return c.fn(x)
}

// And returns a AND b.
func And[T any](a, b Cond[T]) Cond[T] {
	if v, ok := a.Known(); ok {
		if !v {
			return a
		}
		return b
	}
	if v, ok := b.Known(); ok {
		if !v {
			return b
		}
		return a
	}
	fa, fb := a.fn, b.fn
	return Eval(func(x T) bool { return fa(x) && fb(x) })
}

// Or returns a OR b.
func Or[T any](a, b Cond[T]) Cond[T] {
	if v, ok := a.Known(); ok {
		if v {
			return a
		}
		return b
	}
	if v, ok := b.Known(); ok {
		if v {
			return b
		}
		return a
	}
	fa, fb := a.fn, b.fn
	return Eval(func(x T) bool { return fa(x) || fb(x) })
}

// Combine folds conds left to right with And when and is set, Or otherwise.
// An empty list yields the identity of the operation.
func Combine[T any](and bool, conds ...Cond[T]) Cond[T] {
	acc := Known[T](and)
	for _, c := range conds {
		if and {
			acc = And(acc, c)
		} else {
			acc = Or(acc, c)
		}
	}
	return acc
}

// Map adapts a condition over T to one over U.
func Map[T, U any](c Cond[T], f func(U) T) Cond[U] {
	if v, ok := c.Known(); ok {
		return Known[U](v)
	}
	fn := c.fn
	return Eval(func(u U) bool { return fn(f(u)) })
}

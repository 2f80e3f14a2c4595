package op

// Middleware transforms an Operation by wrapping it. The returned operation
// delegates to the original while adding cross-cutting behavior.
type Middleware func(Operation) Operation

// Chain composes middlewares into one. The first middleware is outermost.
//
// Chain(a, b, c)(o) is equivalent to a(b(c(o))).
func Chain(middlewares ...Middleware) Middleware {
	return func(inner Operation) Operation {
		for i := len(middlewares) - 1; i >= 0; i-- {
			inner = middlewares[i](inner)
		}
		return inner
	}
}

// Use applies middlewares to o. Nil middlewares are skipped.
func Use(o Operation, middlewares ...Middleware) Operation {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] != nil {
			o = middlewares[i](o)
		}
	}
	return o
}

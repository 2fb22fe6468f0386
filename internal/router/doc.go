// Package router dispatches requests to registered handlers.
//
// Patterns are made of literal segments, {name} parameters and an optional
// trailing {name...} catch-all that captures one or more segments. When more
// than one pattern matches, the one with the most literal segments wins; a
// pattern without a catch-all beats one with it; remaining ties go to the
// route registered first.
//
// Registration is a startup activity. The first Dispatch freezes the table,
// after which lookups take no locks and Register fails with ErrRouterFrozen.
package router

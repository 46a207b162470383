// Package stagegraph declares the pipeline's stages and the partial order
// between them.
//
// The graph is built once at startup. Unknown dependencies, inputs no
// dependency produces, and cycles are rejected by New; Default panics on such
// errors because the built-in declaration must always be valid.
package stagegraph

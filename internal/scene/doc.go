// Package scene models the structured scene record and builds every
// provider prompt derived from it.
package scene

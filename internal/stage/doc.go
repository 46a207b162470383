// Package stage names the pipeline stages and the health records used to
// report whether each stage's provider is ready.
package stage

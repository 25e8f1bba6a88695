// Package matrix implements a build-matrix runner: a fixed, ordered list of named
// configurations is driven through an external builder's configure and compile steps,
// one case at a time, and the outcome of every case is collected into a single summary.
// The matrix itself is declared in a Starlark script (matrix.star) or a YAML file (matrix.yml).
package matrix

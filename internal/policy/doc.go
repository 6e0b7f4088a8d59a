// Package policy implements the pure admissibility predicates shared by
// the admission and validation pipelines. Every function here is
// side-effect free and answers a single yes/no question; the pipelines
// own ordering and weighting decisions.
package policy

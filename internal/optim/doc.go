// Package optim tunes run parameters by exhaustive grid search over
// reachability experiments.
package optim

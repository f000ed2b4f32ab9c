// Package resolve provides pure conflict resolution strategies that reduce
// a set of conflicting versions of a key to a single resolution. Strategies
// never mutate their input and are total for non-empty version lists.
package resolve

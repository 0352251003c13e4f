// Package export renders reachability tubes as images.
package export

// Package mount probes mount(2): privilege checks, plain mounts and moving
// a mount between points.
package mount

// Package fchown probes the error paths of fchown(2).
package fchown

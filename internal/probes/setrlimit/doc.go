// Package setrlimit probes setrlimit(2) with an unmapped limit pointer.
package setrlimit

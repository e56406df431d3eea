// Package prometheus exports session metrics through client_golang.
package prometheus

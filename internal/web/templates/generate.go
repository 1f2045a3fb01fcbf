// Package templates holds the HTMX fragments served by the web package.
package templates

//go:generate templ generate

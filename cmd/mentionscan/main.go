// Package main provides the entry point for the mentionscan CLI.
//
// Mentionscan counts how often a roster of subjects is mentioned, using
// the search API of an analytics service, and turns the counts into
// weekly and monthly reports.
//
// Usage:
//
//	mentionscan report
//	mentionscan schedule
//
// See --help for all available options.
package main

// main is the entry point for mentionscan.
func main() {
	Execute()
}

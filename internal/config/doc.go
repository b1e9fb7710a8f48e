// Package config provides configuration structures and utilities for
// mentionscan. It defines the main options for talking to the analytics
// backend, query dispatch, scheduling, and report generation preferences.
package config

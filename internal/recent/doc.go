// Package recent remembers correlation ids that were resolved a short while ago
// so a late studio response can be logged as a duplicate instead of as noise.
package recent

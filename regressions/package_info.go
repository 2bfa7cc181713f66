// Package regressions contains the browser regression cases themselves and their supporting API.
//
// Harness infrastructure that is not specific to browsers, such as test outcomes, deadlines and
// artifact polling, is in the lower-level framework package. Everything that talks to a browser
// goes through the driver package, so each case runs unchanged against every backend that
// supports the operations it needs.
package regressions

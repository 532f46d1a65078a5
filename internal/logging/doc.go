// Package logging provides opt-in file logging with rotation for amanscan.
// When the --debug flag is set, structured JSON logs are written to
// ~/.amanscan/logs/ for troubleshooting.
//
// By default logging stays at warn level on stderr so that progress output
// and the scan summary remain readable.
package logging

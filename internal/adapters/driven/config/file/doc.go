// Package file loads service configuration from a TOML file on disk.
//
// Values are layered: built-in defaults, then the file, then STITCH_*
// environment variables. The result is validated before use.
package file

// Package cli provides the command-line interface for apicap.
//
// Running apicap without a subcommand starts a capture session: an
// intercepting HTTP/HTTPS proxy on --port that records traffic to the
// configured target domains into the --output file. With --generate-client
// it instead renders a TypeScript client from an existing capture file.
//
// Subcommands:
//   - ca generate|export: manage the CA used for HTTPS interception
//   - openapi: export a capture file as an OpenAPI 3 document
//   - config: show the effective configuration and where each value came from
//   - version: print build information
package cli

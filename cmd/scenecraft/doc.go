// Package main hosts the scenecraft CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the pipeline locally (generate), serves it
// over HTTP (serve), inspects the archive of exported sessions, queries a
// running server (status, events) and scaffolds configuration. It centralizes
// configuration loading, dotenv handling and file-only logging so subcommands
// can focus on output.
//
// Keep this package lean: add functionality to the internal packages first and
// surface it here through a dedicated command or flag.
package main

// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// Z-A database tools. It uses the mark3labs/mcp-go library to handle the
// protocol details and provides run_code as the primary interface to the
// sandboxed execution engine, alongside the get_pokemon and get_move detail
// lookups.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver

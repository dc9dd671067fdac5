// Package main is the entry point for the dexbox MCP server.
//
// dexbox exposes a read-only Pokémon Legends Z-A database over the Model
// Context Protocol, including a sandboxed code runner that executes
// caller-supplied JavaScript snippets against the database in an isolated
// worker process. The server supports both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration. When invoked as `dexbox-server worker` the process
// instead runs the sandbox worker runtime: one request on stdin, one
// outcome on stdout.
package main

import (
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/dexbox/config"
	"github.com/isdmx/dexbox/logger"
	"github.com/isdmx/dexbox/mcpserver"
	"github.com/isdmx/dexbox/sandbox"
)

func main() {
	// Worker mode bypasses fx entirely: the supervisor owns this process's
	// lifetime and stdout carries exactly one outcome envelope.
	if sandbox.IsWorkerProcess(os.Args) {
		os.Exit(sandbox.WorkerMain(os.Stdin, os.Stdout))
	}

	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Sandbox executor based on config
			sandbox.NewExecutor,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}

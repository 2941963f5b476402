package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "dojod.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "run":
		err = cmdRun(os.Args[2:])
	case "submit":
		err = cmdSubmit(os.Args[2:])
	case "seed":
		err = cmdSeed(os.Args[2:])
	case "mcp":
		err = cmdMCP(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("dojo %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`codedojo - Python practice with graded problems

Usage:
  dojo <command> [arguments]

Daemon Commands:
  start                   Start the codedojo daemon
  stop                    Stop the codedojo daemon
  status                  Show daemon status

Practice Commands:
  run <file.py>           Run a program once and print its output
  submit <id> <file.py>   Grade a program against problem <id>
  seed <dir>              Load problem banks from YAML into the database

Integration:
  mcp [--http <addr>]     Serve MCP tools on stdio (or HTTP)

Other:
  help                    Show this help
  version                 Show version

Environment:
  DOJO_HOME               Config directory (default ~/.codedojo)
  DOJO_USER               Learner id for local commands (default: OS user)`)
}

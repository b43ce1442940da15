package main

import (
	"fmt"
	"os"

	"imagefetch/cmd/subcmd"
	"imagefetch/impl/config"
	"imagefetch/impl/globals"
)

// set by the build with -ldflags
var buildDtm string

func main() {
	os.Exit(realMain())
}

// realMain parses the command line, configures logging and runs the sub-command. It
// returns the process exit code.
func realMain() int {
	command, err := getCfg()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if command == "" {
		// the parser displayed help
		return 0
	}
	if err := globals.ConfigureLogging(config.GetLogLevel(), config.GetLogFile()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	switch command {
	case "serve":
		err = subcmd.Serve(globals.Version, buildDtm)
	case "load":
		err = subcmd.Load()
	case "list":
		err = subcmd.List()
	case "clear":
		err = subcmd.Clear()
	case "version":
		fmt.Printf("imagefetch version: %s build date: %s\n", globals.Version, buildDtm)
	default:
		err = fmt.Errorf("unknown command: %s", command)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

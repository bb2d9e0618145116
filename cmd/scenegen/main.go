package main

import (
	"fmt"
	"os"
	"time"

	"scenegen/internal/cli"
	"scenegen/internal/pkg/logger"
	"scenegen/internal/pkg/shutdown"
)

func main() {
	log := logger.NewDefault()

	mgr := shutdown.NewManager(log, 30*time.Second)
	mgr.Listen()

	err := cli.NewRootCommand(cli.Deps{Log: log, Shutdown: mgr}).ExecuteContext(mgr.Context())
	if serr := mgr.Shutdown(); serr != nil {
		log.Warn("shutdown incomplete", "error", serr.Error())
	}

	code := cli.ExitCode(err)
	if err != nil {
		if code == cli.ExitInterrupted {
			fmt.Fprintln(os.Stderr, "\ninterrupted; run again to resume")
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
	os.Exit(code)
}

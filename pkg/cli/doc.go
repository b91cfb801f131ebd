/*
Package cli provides shared helpers for the callisto command.

It covers the two concerns every subcommand needs: classified errors that
distinguish configuration problems from command failures, and signal
handling for graceful shutdown.

Error Classification:

	if err := config.LoadConfig(path); err != nil {
		return cli.NewConfigError(path, err)
	}

Signal Handling:

	sigChan := cli.WaitForShutdown()
	select {
	case <-sigChan:
		// begin graceful shutdown
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	}
*/
package cli

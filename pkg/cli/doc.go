/*
Package cli provides command-line interface utilities for the loom command.

The cli package includes output formatters, shutdown helpers, and the error
types commands return.

Output Formatting:

The cli package supports text and JSON output for displaying command
results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

Signal Handling:

For reporting shutdown signals on the console:

	sigChan := cli.WaitForShutdown()
	sig := <-sigChan

Command Errors:

Commands wrap their failures so the root command prints a uniform message:

	return cli.NewCommandError("serve", err)
*/
package cli

// Loom turns natural-language software requirements into committed code.
//
// It runs an asynchronous pipeline behind a polling HTTP API: each accepted
// requirement is analyzed by an LLM, turned into source files, scored for
// quality, and pushed to a branch of the task's repository. Tasks, quality
// metrics, and code templates are persisted in SQLite or PostgreSQL; jobs
// flow through a durable priority queue with bounded worker concurrency.
//
// Usage:
//
//	# Start the server with the default configuration
//	loom serve
//
//	# Start with a custom configuration file
//	loom serve --config /path/to/config.yaml
//
//	# Check a configuration file without starting anything
//	loom validate
//
//	# Show version information
//	loom version
package main

func main() {
	Execute()
}

// Package api implements the HTTP surface of the pipeline: task
// submission, polling and queue administration.
//
// # Endpoints
//
//	POST /requirement-tasks              submit a requirement, returns the task id
//	GET  /requirement-tasks              list tasks, filter by projectId and status
//	GET  /requirement-tasks/{taskId}     poll one task
//	GET  /requirement-tasks/queue/stats  queue census
//	POST /requirement-tasks/queue/clean  remove terminal jobs
//
// Submission is asynchronous: the create response carries only the id
// and the pending status, and clients poll for progress. There is no
// push channel.
//
// All bodies are camelCase JSON. Failures use a uniform envelope
// {"error": {"code", "message"}}; see the types package for the code
// taxonomy and its HTTP status mapping.
//
// The handler talks to the store and queue through the narrow
// TaskStore and TaskQueue interfaces, which keeps tests on stubs and
// the composition to the server package.
package api

// Package dedupe suppresses duplicate ExecuteTask deliveries.
//
// A command can reach the orchestrator twice: once as a direct push right
// after SubmitCommand (or an Intent) and again when the control plane
// announces it on the durable stream. The Cache remembers target/command
// pairs for a TTL so the agent sees the command only once.
package dedupe

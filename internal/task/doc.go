// Package task implements the action build pipeline: claiming build tasks,
// expanding them into recording tasks, executing the recording tasks against
// the external recorder with bounded concurrency, and publishing the
// resulting source version. All cross-process coordination goes through the
// stores' atomic claim operations; nothing in this package shares memory
// between processes.
package task

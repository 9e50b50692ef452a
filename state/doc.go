// Package state holds the in-memory identity namespaces served by the
// emulator: the agent project, its tenants, and for each of them the users,
// action codes, phone verification sessions, temporary proofs and refresh
// tokens.
//
// State types are not safe for concurrent use on their own. Callers
// serialize access per agent project with AgentProjectState.Lock, which
// also covers every tenant nested under that project.
package state

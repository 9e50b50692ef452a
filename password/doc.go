// Package password implements the emulator's password storage.
//
// Passwords set through the API are stored with a reversible fake hash so
// that developers can read them back from exported accounts. Accounts
// imported with a real hash algorithm keep that hash and are verified with
// the matching key derivation function.
package password

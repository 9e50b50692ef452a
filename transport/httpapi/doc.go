// Package httpapi serves the emulator over the REST paths production
// clients already speak.
//
// Every route resolves to one [authemu.OperationID] plus a [authemu.Target]
// built from the path (project, tenant) and the caller's credentials, then
// hands the request body to [authemu.Engine.Dispatch]. Query parameters are
// merged into the body so GET and DELETE routes reach the same typed
// requests as POST routes. Failures are written as the JSON error envelope
// clients parse, with the status taken from [authemu.ErrorKind.HTTPStatus].
package httpapi

// Package logging builds the relay's log/slog logger.
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr
//
// Every record carries service and version fields. Components add their own
// with With("component", ...). The broker password is never logged.
package logging

// Package logging builds the service's slog logger.
//
// Every entry carries service=surplusheater and the build version. Format
// is JSON unless text is asked for; the debug toggle forces the debug level:
//
//	logging:
//	  level: info      # debug, info, warn, error
//	  format: json     # json, text
//	  output: stdout   # stdout, stderr
//	  debug: false
//
// Never log device or broker credentials.
package logging

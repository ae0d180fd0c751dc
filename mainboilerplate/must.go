package mainboilerplate

import (
	log "github.com/sirupsen/logrus"
)

// Version is populated at build with the project release version.
var Version = "development"

// BuildDate is populated at build with the project build date.
var BuildDate = "unknown"

// Must panics via the logger if |err| is non-nil, annotated with |msg| and
// additional field key/value pairs.
func Must(err error, msg string, extra ...interface{}) {
	if err == nil {
		return
	}
	var f = log.Fields{"err": err}
	for i := 0; i+1 < len(extra); i += 2 {
		f[extra[i].(string)] = extra[i+1]
	}
	log.WithFields(f).Fatal(msg)
}

package worker

import (
	"os"
	"strings"
)

var workerDebugEnabled = strings.EqualFold(os.Getenv("STUDYAI_WORKER_DEBUG"), "1")

func (d *Dispatcher) debugLog(msg string, keysAndValues ...interface{}) {
	if workerDebugEnabled {
		d.log.Debug(msg, keysAndValues...)
	}
}

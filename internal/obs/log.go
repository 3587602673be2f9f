package obs

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"
)

var (
	loggerOnce sync.Once
	logger     *log.Logger
)

// Logger returns the process-wide line logger. Output defaults to stdout and
// can be redirected in tests.
func Logger() *log.Logger {
	loggerOnce.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Emit writes one structured JSON log line. The kind lands in the "type"
// field and a UTC timestamp is stamped here so callers never format time.
func Emit(kind string, fields map[string]any) {
	entry := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		entry[k] = v
	}
	entry["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	entry["type"] = kind
	data, err := json.Marshal(entry)
	if err != nil {
		Logger().Printf(`{"type":"log_error","error":%q}`, err.Error())
		return
	}
	Logger().Println(string(data))
}

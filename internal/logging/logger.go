package logging

import (
	"log"
	"os"
	"strings"
	"sync"
)

const (
	Critical = 50
	Error    = 40
	Warning  = 30
	Info     = 20
	Debug    = 10
)

var (
	logLevel      = Info
	logLevelMutex sync.Mutex
)

func init() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		SetLogLevel(Debug)
	case "info":
		SetLogLevel(Info)
	case "warning", "warn":
		SetLogLevel(Warning)
	case "error":
		SetLogLevel(Error)
	}
}

func SetLogLevel(level int) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	logLevel = level
}

func Debugf(format string, v ...interface{}) {
	logf(Debug, "[DEBUG] "+format, v...)
}

func Infof(format string, v ...interface{}) {
	logf(Info, "[INFO] "+format, v...)
}

func Warningf(format string, v ...interface{}) {
	logf(Warning, "[WARN] "+format, v...)
}

func Errorf(format string, v ...interface{}) {
	logf(Error, "[ERROR] "+format, v...)
}

func Fatalf(format string, v ...interface{}) {
	log.Fatalf("[FATAL] "+format, v...)
}

func logf(level int, format string, v ...interface{}) {
	logLevelMutex.Lock()
	defer logLevelMutex.Unlock()
	if logLevel <= level {
		log.Printf(format, v...)
	}
}

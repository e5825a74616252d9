package common

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
)

func PanicIfError(config *CommonConfig, err error) {
	if err != nil {
		panic(err)
	}
}

func Panic(config *CommonConfig, message string) {
	err := errors.New(message)
	PanicIfError(config, err)
}

// Deferred in main: prints the unexpected failure with enough context to file an issue
func HandleUnexpectedPanic(config *CommonConfig) {
	recovered := recover()
	if recovered == nil {
		return
	}

	err, ok := recovered.(error)
	if !ok {
		err = fmt.Errorf("%v", recovered)
	}

	logger := Logger(config)
	logger.Error().
		Str("version", VERSION).
		Str("os", runtime.GOOS+"-"+runtime.GOARCH).
		Str("stackTrace", string(debug.Stack())).
		Msg("Unexpected error: " + err.Error())
	os.Exit(1)
}

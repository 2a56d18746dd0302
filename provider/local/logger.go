package local

import (
	"fmt"

	"github.com/waveport/go-portal"
)

type stdLogger struct{}

func (stdLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] LOCAL "+newline(format), args...)
}

func (stdLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] LOCAL "+newline(format), args...)
}

func (stdLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] LOCAL "+newline(format), args...)
}

func (stdLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] LOCAL "+newline(format), args...)
}

func defLogger() portal.Logger {
	return stdLogger{}
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrintHelp(t *testing.T) {
	t.Run("should print help information without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			printHelp()
		})
	})
}

func TestPrintVersion(t *testing.T) {
	t.Run("should print version information without panicking", func(t *testing.T) {
		assert.NotPanics(t, func() {
			printVersion()
		})
	})
}

func TestListSessions(t *testing.T) {
	t.Run("should report no sessions for an empty lock file", func(t *testing.T) {
		// Arrange - point the lock file somewhere that does not exist
		t.Setenv("LOCK_FILE", t.TempDir()+"/no_sessions.json")

		// Act
		exitCode := listSessions()

		// Assert
		assert.Equal(t, 0, exitCode)
	})
}

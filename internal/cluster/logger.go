package cluster

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// newRaftLogger creates the hclog.Logger handed to Raft. Level "off" discards
// everything so Raft's chatter stays out of the application log.
func newRaftLogger(w io.Writer, levelName string) hclog.Logger {
	level := hclog.LevelFromString(levelName)
	if silenced(level) {
		return hclog.New(&hclog.LoggerOptions{
			Name:   "raft",
			Level:  hclog.Off,
			Output: io.Discard,
		})
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   "raft",
		Level:  level,
		Output: w,
	})
}

// raftLogOutput is the writer for Raft components that take an io.Writer
// rather than an hclog.Logger, such as the TCP transport.
func raftLogOutput(w io.Writer, levelName string) io.Writer {
	if silenced(hclog.LevelFromString(levelName)) {
		return io.Discard
	}
	return w
}

func silenced(level hclog.Level) bool {
	return level == hclog.Off || level == hclog.NoLevel
}

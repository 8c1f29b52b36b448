package driver

import (
	"fmt"
	"os"
	"os/exec"
)

// tracerPipeFD is the fd the pipe's write end lands on inside the
// child's table: fds 0-2 are stdio, and cmd.ExtraFiles appends starting
// at fd 3.
const tracerPipeFD = 3

// TracerConfig names the target binary and the concolic-execution
// options its TAINT_OPTIONS environment variable must carry.
type TracerConfig struct {
	Path     string
	Args     []string
	TaintFile string // an input file path, or the literal "stdin"
	ShmID    int
	Debug    bool
}

func (c TracerConfig) taintOptions() string {
	debug := 0
	if c.Debug {
		debug = 1
	}
	return fmt.Sprintf("taint_file=%s:shm_id=%d:pipe_fd=%d:debug=%d", c.TaintFile, c.ShmID, tracerPipeFD, debug)
}

// StartTracer forks cfg.Path as the tracer child, with pipeWrite as the
// pipe write end (handed to the child at tracerPipeFD) and, when
// cfg.TaintFile is "stdin", stdinFile dup'd onto the child's stdin. The
// caller owns pipeWrite/stdinFile and must close its own copies after
// Start returns; the child keeps independent descriptors via ExtraFiles.
func StartTracer(cfg TracerConfig, pipeWrite *os.File, stdinFile *os.File) (*exec.Cmd, error) {
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = append(os.Environ(), "TAINT_OPTIONS="+cfg.taintOptions())
	cmd.ExtraFiles = []*os.File{pipeWrite}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if cfg.TaintFile == "stdin" && stdinFile != nil {
		cmd.Stdin = stdinFile
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("driver: start tracer: %w", err)
	}
	return cmd, nil
}

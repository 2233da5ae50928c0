// Package procs starts worker processes connected to the coordinator by a
// pair of anonymous pipes.
package procs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// File descriptors the worker finds its pipes on. ExtraFiles start at 3.
const (
	CommandsFD = 3
	ResultsFD  = 4
)

// Process is a running worker as seen by the coordinator.
type Process interface {
	ID() int
	Pid() int
	// Commands is the write end of the coordinator-to-worker pipe.
	Commands() io.WriteCloser
	// Results is the read end of the worker-to-coordinator pipe.
	Results() io.ReadCloser
	// Wait blocks until the process is gone and reports how it ended.
	Wait() error
	Kill() error
}

// Spawner starts worker id.
type Spawner interface {
	Spawn(ctx context.Context, id int) (Process, error)
}

// ExecSpawner runs Path with the arguments returned by Args for each worker.
type ExecSpawner struct {
	Path   string
	Args   func(id int) []string
	Env    []string  // nil inherits the coordinator's environment
	Stderr io.Writer // worker logs; nil discards them
}

// NewSelfSpawner re-executes the running binary.
func NewSelfSpawner(args func(id int) []string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{Path: exe, Args: args, Stderr: os.Stderr}, nil
}

func (s *ExecSpawner) Spawn(ctx context.Context, id int) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Path == "" {
		return nil, errors.New("spawner has no executable path")
	}

	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("command pipe: %w", err)
	}
	resR, resW, err := os.Pipe()
	if err != nil {
		closeAll(cmdR, cmdW)
		return nil, fmt.Errorf("result pipe: %w", err)
	}

	var args []string
	if s.Args != nil {
		args = s.Args(id)
	}
	cmd := exec.Command(s.Path, args...)
	cmd.ExtraFiles = []*os.File{cmdR, resW}
	cmd.Env = s.Env
	cmd.Stderr = s.Stderr

	if err := cmd.Start(); err != nil {
		closeAll(cmdR, cmdW, resR, resW)
		return nil, fmt.Errorf("start worker %d: %w", id, err)
	}
	// The child holds its own copies; keeping ours would mask EOF.
	closeAll(cmdR, resW)

	return &execProcess{id: id, cmd: cmd, commands: cmdW, results: resR}, nil
}

type execProcess struct {
	id       int
	cmd      *exec.Cmd
	commands *os.File
	results  *os.File
}

func (p *execProcess) ID() int                  { return p.id }
func (p *execProcess) Pid() int                 { return p.cmd.Process.Pid }
func (p *execProcess) Commands() io.WriteCloser { return p.commands }
func (p *execProcess) Results() io.ReadCloser   { return p.results }

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

func (p *execProcess) Kill() error {
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

// WorkerPipes opens the pipes a worker inherited from ExecSpawner.
func WorkerPipes() (commands io.ReadCloser, results io.WriteCloser, err error) {
	cmdFile := os.NewFile(CommandsFD, "commands")
	resFile := os.NewFile(ResultsFD, "results")
	if cmdFile == nil || resFile == nil {
		return nil, nil, errors.New("worker pipes not inherited; run through the coordinator")
	}
	if _, err := cmdFile.Stat(); err != nil {
		return nil, nil, fmt.Errorf("command pipe: %w", err)
	}
	if _, err := resFile.Stat(); err != nil {
		return nil, nil, fmt.Errorf("result pipe: %w", err)
	}
	return cmdFile, resFile, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

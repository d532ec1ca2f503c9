package cosmic

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
)

// ScriptName is the LACosmic task definition inside the script dir.
const ScriptName = "lacos_im.cl"

// DefaultCommand is the wrapper in scripts/ that feeds the call to the
// IRAF cl, which won't take it as argv itself.
const DefaultCommand = "lacos_im.sh"

// Task is a Detector that runs the external task as a child process.
//
// The command line is Command (shell-quoted, so it can carry its own
// arguments) followed by the call in IRAF task syntax:
//
//	<command...> input[ext] clean mask gain=1.5 readn=3 sigclip=5 sigfrac=0.3 objlim=2 niter=5
//
// The child finds the task definition through LACOS_IM in its
// environment, which points at ScriptName inside ScriptDir.
type Task struct {
	Command   string
	ScriptDir string
	Env       []string // extra KEY=value pairs for the child, e.g. iraf=/iraf/iraf/
}

// NewTask checks that command parses and isn't empty.
func NewTask(command, scriptDir string) (*Task, error) {
	argv, err := shellquote.Split(command)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "tool command %q", command), errors.ErrConfiguration)
	}
	if len(argv) == 0 {
		return nil, errors.Configurationf("tool command is empty")
	}
	return &Task{Command: command, ScriptDir: scriptDir}, nil
}

// ScriptPath is where the task definition is expected to live.
func (t *Task) ScriptPath() string {
	if t.ScriptDir == "" {
		return ScriptName
	}
	return filepath.Join(t.ScriptDir, ScriptName)
}

// Args returns the full argv for a request.
func (t *Task) Args(req Request) ([]string, error) {
	argv, err := shellquote.Split(t.Command)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "tool command %q", t.Command), errors.ErrConfiguration)
	}
	if len(argv) == 0 {
		return nil, errors.Configurationf("tool command is empty")
	}

	s := req.Settings
	return append(argv,
		fmt.Sprintf("%s[%d]", req.Input, req.Extension),
		req.Outputs.Clean,
		req.Outputs.Mask,
		"gain="+formatFloat(s.Gain),
		"readn="+formatFloat(s.ReadNoise),
		"sigclip="+formatFloat(s.Sigclip),
		"sigfrac="+formatFloat(s.Sigfrac),
		"objlim="+strconv.Itoa(s.Objlim),
		"niter="+strconv.Itoa(s.Niter),
	), nil
}

func (t *Task) Detect(ctx context.Context, req Request) error {
	argv, err := t.Args(req)
	if err != nil {
		return errors.Mark(err, errors.ErrExternalTool)
	}

	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return errors.WithHint(
			errors.Mark(errors.Wrapf(err, "find %s", argv[0]), errors.ErrExternalTool),
			"install scripts/"+DefaultCommand+" on PATH, or set tool.command to the program that runs "+ScriptName)
	}

	cmd := exec.CommandContext(ctx, bin, argv[1:]...)
	cmd.Env = append(os.Environ(), "LACOS_IM="+t.ScriptPath(), "LACOS_SCRIPT_DIR="+t.ScriptDir)
	cmd.Env = append(cmd.Env, t.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if out := strings.TrimSpace(stdout.String()); out != "" {
		logger.Logger.Debugw("Task output", logger.FieldFile, req.Input, "stdout", out)
	}
	if err != nil {
		err = errors.Mark(errors.Wrapf(err, "run %s on %s", argv[0], req.Input), errors.ErrExternalTool)
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithDetail(err, tail(msg, 2000))
		}
		return err
	}

	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

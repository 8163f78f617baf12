package holistic

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlearn/internal/detector"
)

var (
	// ErrScriptNotFound is returned when holistic_service.py cannot be located.
	ErrScriptNotFound = errors.New("holistic_service.py not found")

	// ErrResponseTimeout is returned when the service does not answer a frame in time.
	// The process is killed and restarted on the next frame.
	ErrResponseTimeout = errors.New("holistic service response timeout")
)

// idleShutdown is how long the Python process may sit unused before it is stopped.
const idleShutdown = 30 * time.Second

// Process implements Detector using a Python MediaPipe Holistic subprocess.
//
// Protocol: each request is a 4-byte big-endian length followed by a JPEG frame
// on stdin; each response is one JSON line on stdout with optional "pose", "face",
// "left_hand" and "right_hand" arrays.
type Process struct {
	config    Config
	logger    *slog.Logger
	script    string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	idleTimer *time.Timer
}

// NewProcess creates a detector backed by holistic_service.py.
// The Python process is started lazily on first detection.
func NewProcess(config Config, logger *slog.Logger) (*Process, error) {
	script := findHolisticScript()
	if script == "" {
		return nil, ErrScriptNotFound
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Process{
		config: config,
		logger: logger,
		script: script,
	}, nil
}

// Detect sends one frame to the subprocess and returns the decoded landmark groups.
func (d *Process) Detect(frame *gocv.Mat) (*detector.Frame, error) {
	if frame == nil || frame.Empty() {
		return nil, errors.New("empty frame")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	buf, err := gocv.IMEncode(".jpg", *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(data)))

	if _, err := d.stdin.Write(header); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := readLine(d.stdout, d.config.responseTimeout())
	if errors.Is(err, ErrResponseTimeout) {
		d.logger.Warn("holistic service not responding, restarting", "timeout", d.config.responseTimeout())
		d.cmd.Process.Kill()
		d.shutdown()
		return nil, err
	}
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	result, err := decodeLine(line)
	if err != nil {
		return nil, err
	}
	result.Timestamp = time.Now().UnixMilli()

	d.resetIdleTimer()
	return result, nil
}

// Close shuts down the Python process.
func (d *Process) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

// readLine reads one response line, giving up after timeout. On timeout the
// read keeps going in the background until r fails, so the caller must
// close the underlying pipe.
func readLine(r *bufio.Reader, timeout time.Duration) ([]byte, error) {
	type result struct {
		line []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadBytes('\n')
		ch <- result{line, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.line, res.err
	case <-timer.C:
		return nil, ErrResponseTimeout
	}
}

// decodeLine parses one response line from the subprocess.
func decodeLine(line []byte) (*detector.Frame, error) {
	var response struct {
		detector.Frame
		Error string `json:"error"`
	}
	if err := json.Unmarshal(line, &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("holistic service: %s", response.Error)
	}
	f := response.Frame
	return &f, nil
}

func (d *Process) args() []string {
	return []string{
		d.script,
		"--model-complexity", strconv.Itoa(d.config.ModelComplexity),
		"--min-detection-confidence", strconv.FormatFloat(d.config.MinDetectionConf, 'f', -1, 64),
		"--min-tracking-confidence", strconv.FormatFloat(d.config.MinTrackingConf, 'f', -1, 64),
		"--smooth-landmarks=" + strconv.FormatBool(d.config.SmoothLandmarks),
		"--refine-face=" + strconv.FormatBool(d.config.RefineFace),
	}
}

func (d *Process) ensureStarted() error {
	if d.started {
		return nil
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	d.cmd = exec.Command(pythonPath, d.args()...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start holistic service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.logger.Info("holistic service started", "python", pythonPath, "script", d.script)

	return nil
}

func (d *Process) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil
	d.logger.Info("holistic service stopped")

	return err
}

func (d *Process) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(idleShutdown, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findHolisticScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		"scripts/holistic_service.py",
		"../scripts/holistic_service.py",
		filepath.Join(execDir, "scripts/holistic_service.py"),
		filepath.Join(os.Getenv("HOME"), ".signlearn/scripts/holistic_service.py"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if absPath, err := filepath.Abs(path); err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".signlearn/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if absPath, err := filepath.Abs(path); err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

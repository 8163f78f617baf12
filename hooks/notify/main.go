// Command notify is a prediction hook that shows a desktop notification.
// It reads one prediction event as JSON on stdin and answers with a hook
// response on stdout. Use it with SIGNLEARN_HOOK_COMMAND.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"

	"github.com/ayusman/signlearn/internal/sink"
)

func main() {
	resp := handle(os.Stdin, notify)
	json.NewEncoder(os.Stdout).Encode(resp)
}

// handle decodes the event and calls show for events worth announcing.
func handle(r io.Reader, show func(title, body string) error) sink.HookResponse {
	var ev sink.Event
	if err := json.NewDecoder(r).Decode(&ev); err != nil {
		return sink.HookResponse{Error: fmt.Sprintf("failed to decode event: %v", err)}
	}
	if !ev.OK {
		return sink.HookResponse{Success: true}
	}

	title, body := message(ev)
	if err := show(title, body); err != nil {
		return sink.HookResponse{Error: fmt.Sprintf("notification failed: %v", err)}
	}
	return sink.HookResponse{Success: true}
}

func message(ev sink.Event) (title, body string) {
	if ev.Matched {
		title = "Well done!"
		body = fmt.Sprintf("You signed %q.", ev.Prediction)
	} else {
		title = "SignLearn"
		body = fmt.Sprintf("Recognized %q.", ev.Prediction)
		if ev.Target != "" {
			body += fmt.Sprintf(" Keep practicing %q.", ev.Target)
		}
	}
	if ev.Confidence != nil {
		body += fmt.Sprintf(" (%d%%)", int(*ev.Confidence*100+0.5))
	}
	return title, body
}

func notify(title, body string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		script := "display notification " + strconv.Quote(body) + " with title " + strconv.Quote(title)
		cmd = exec.Command("osascript", "-e", script)
	case "linux":
		cmd = exec.Command("notify-send", title, body)
	default:
		return errors.New("notifications are not supported on " + runtime.GOOS)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}

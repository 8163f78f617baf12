package app

import (
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/signlearn/internal/capture"
	"github.com/ayusman/signlearn/internal/detector"
)

// run is the capture loop:
//  1. read a frame and publish it to the preview
//  2. motion decides between idle (5 FPS) and active (15 FPS)
//  3. on return to idle the session window is cleared so stale frames never form a window
//  4. in active mode the frame is run through the detector into the session
func (a *App) run(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / time.Duration(capture.IdleFPS))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			frame, err := a.camera.ReadFrame()
			if err != nil {
				a.logger.Debug("error reading frame", "error", err)
				continue
			}

			mode, changed := a.step(frame, now)
			frame.Close()

			if changed {
				a.camera.SetFPS(mode.FPS())
				ticker.Reset(time.Second / time.Duration(mode.FPS()))
			}
		}
	}
}

// step processes one frame and reports the capture mode after it.
func (a *App) step(frame *gocv.Mat, now time.Time) (capture.Mode, bool) {
	if a.preview != nil {
		if err := a.preview.PublishMat(frame); err != nil {
			a.logger.Debug("error encoding preview", "error", err)
		}
	}

	motion := a.motion.Detect(frame)
	mode, changed := a.activity.Observe(motion.Moving, now)
	if changed {
		a.logger.Info("capture mode", "mode", mode, "changed", motion.Changed)
		if mode == capture.ModeIdle {
			a.session.Reset()
		}
	}

	if mode != capture.ModeActive {
		return mode, changed
	}

	d := a.Detector()
	if d == nil {
		return mode, changed
	}

	landmarks, err := d.Detect(frame)
	if err != nil {
		a.logger.Warn("error detecting landmarks", "error", err)
		return mode, changed
	}
	if landmarks == nil {
		landmarks = &detector.Frame{}
	}
	landmarks.Timestamp = now.UnixMilli()

	if err := a.session.HandleFrame(landmarks); err != nil {
		a.logger.Debug("frame rejected", "error", err)
	}
	return mode, changed
}

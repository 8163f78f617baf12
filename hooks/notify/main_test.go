package main

import (
	"errors"
	"strings"
	"testing"
)

func TestHandle(t *testing.T) {
	var title, body string
	show := func(t, b string) error {
		title, body = t, b
		return nil
	}

	resp := handle(strings.NewReader(`{"prediction":"hello","target":"hello","ok":true,"matched":true,"confidence":0.87}`), show)
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if title != "Well done!" || body != `You signed "hello". (87%)` {
		t.Errorf("notification = %q / %q", title, body)
	}
}

func TestHandle_Unmatched(t *testing.T) {
	var body string
	resp := handle(strings.NewReader(`{"prediction":"thanks","target":"hello","ok":true}`), func(_, b string) error {
		body = b
		return nil
	})
	if !resp.Success {
		t.Fatalf("response = %+v", resp)
	}
	if body != `Recognized "thanks". Keep practicing "hello".` {
		t.Errorf("body = %q", body)
	}
}

func TestHandle_FailureIsQuiet(t *testing.T) {
	called := false
	resp := handle(strings.NewReader(`{"prediction":"error","ok":false}`), func(_, _ string) error {
		called = true
		return nil
	})
	if !resp.Success || called {
		t.Errorf("failed predictions should be ignored, resp=%+v called=%v", resp, called)
	}
}

func TestHandle_Errors(t *testing.T) {
	resp := handle(strings.NewReader(`not json`), nil)
	if resp.Success || !strings.Contains(resp.Error, "decode") {
		t.Errorf("bad input response = %+v", resp)
	}

	resp = handle(strings.NewReader(`{"prediction":"hello","ok":true}`), func(_, _ string) error {
		return errors.New("no display")
	})
	if resp.Success || !strings.Contains(resp.Error, "no display") {
		t.Errorf("show failure response = %+v", resp)
	}
}

package notify

import (
	"errors"
	"testing"
)

type captureSender struct {
	payloads []any
	err      error
}

func (c *captureSender) Send(payload any) error {
	c.payloads = append(c.payloads, payload)
	return c.err
}

func TestPushToRegisteredClient(t *testing.T) {
	r := NewRegistry()
	sender := &captureSender{}
	r.Register("c1", sender)

	r.Push("c1", "hello")
	if len(sender.payloads) != 1 || sender.payloads[0] != "hello" {
		t.Fatalf("payloads = %v, want [hello]", sender.payloads)
	}
}

func TestPushToAbsentClientIsDropped(t *testing.T) {
	r := NewRegistry()
	r.Push("nobody", "hello")
	if r.Connected("nobody") {
		t.Fatal("Connected(nobody) = true, want false")
	}
}

func TestPushSendFailureDoesNotUnregister(t *testing.T) {
	r := NewRegistry()
	sender := &captureSender{err: errors.New("socket gone")}
	r.Register("c1", sender)

	r.Push("c1", "hello")
	if !r.Connected("c1") {
		t.Fatal("client dropped after send failure")
	}
}

func TestUnregisterOnlyRemovesOwnBinding(t *testing.T) {
	r := NewRegistry()
	old := &captureSender{}
	r.Register("c1", old)

	replacement := &captureSender{}
	r.Register("c1", replacement)

	// The stale connection closing must not evict the reconnect.
	r.Unregister("c1", old)
	if !r.Connected("c1") {
		t.Fatal("reconnected client evicted by stale unregister")
	}

	r.Unregister("c1", replacement)
	if r.Connected("c1") {
		t.Fatal("client still connected after unregister")
	}
}

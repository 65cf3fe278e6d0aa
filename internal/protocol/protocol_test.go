package protocol

import (
	"bytes"
	"testing"
)

func TestDecodeImageData(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	cases := []struct {
		in   string
		want []byte
		ok   bool
	}{
		{EncodePNG(png), png, true},
		{"iVBORw==", []byte{0x89, 'P', 'N', 'G'}, true},
		{"data:image/png;base64,", nil, false},
		{"data:image/png,raw", nil, false},
		{"", nil, false},
		{"!!!not base64", nil, false},
	}
	for _, c := range cases {
		got, err := DecodeImageData(c.in)
		if c.ok != (err == nil) {
			t.Fatalf("DecodeImageData(%q) err = %v", c.in, err)
		}
		if c.ok && !bytes.Equal(got, c.want) {
			t.Fatalf("DecodeImageData(%q) = %v", c.in, got)
		}
	}
}

func TestValidateInbound(t *testing.T) {
	cases := []struct {
		typ string
		raw string
		ok  bool
	}{
		{TypeSketch, `{"type":"SKETCH","protocol_version":"1.0","req_id":"r1","image":"abc","x":10,"y":20}`, true},
		{TypeSketch, `{"type":"SKETCH","protocol_version":"1.0","req_id":"r1","image":"abc","x":10}`, false},
		{TypeSketch, `{"type":"SKETCH","protocol_version":"1.0","req_id":"r1","image":"abc","x":1,"y":2,"backend":"dalle"}`, false},
		{TypeCommand, `{"type":"COMMAND","protocol_version":"1.0","req_id":"r2","text":"set the boat on fire"}`, true},
		{TypeCommand, `{"type":"COMMAND","protocol_version":"1.0","req_id":"r2","verb":"setfire","target":"wooden"}`, true},
		{TypeCommand, `{"type":"COMMAND","protocol_version":"1.0","req_id":"r2"}`, false},
		{TypeLevel, `{"type":"LEVEL","protocol_version":"1.0","req_id":"r3","action":"restart"}`, true},
		{TypeLevel, `{"type":"LEVEL","protocol_version":"1.0","req_id":"r3","action":"load"}`, false},
		{TypeBulk, `{"type":"BULK","protocol_version":"1.0","req_id":"r4","action":"destroy_ice"}`, true},
		{TypeBulk, `{"type":"BULK","protocol_version":"1.0","req_id":"r4","action":"nuke"}`, false},
		{TypeHello, `{"type":"HELLO","protocol_version":"1.0"}`, true},
		{"PING", `{"type":"PING"}`, false},
	}
	for _, c := range cases {
		err := Validate(c.typ, []byte(c.raw))
		if c.ok != (err == nil) {
			t.Fatalf("Validate(%s, %s) err = %v", c.typ, c.raw, err)
		}
	}
}

func TestDecodeBase(t *testing.T) {
	m, err := DecodeBase([]byte(`{"type":"LEVEL","protocol_version":"1.0","req_id":"r9","action":"next"}`))
	if err != nil || m.Type != TypeLevel || m.ReqID != "r9" {
		t.Fatalf("base = %+v, %v", m, err)
	}
}

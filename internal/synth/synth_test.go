package synth

import (
	"bytes"
	"testing"

	"github.com/tetratelabs/wazero/api"
)

func TestBuildHasMagicAndVersion(t *testing.T) {
	b := NewModuleBuilder("api")
	b.AddForward("ping", nil, []api.ValueType{api.ValueTypeI32})

	out := b.Build()
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if len(out) < len(want) || !bytes.Equal(out[:8], want) {
		t.Fatalf("missing magic/version prefix, got % x", out[:min(len(out), 8)])
	}
}

func TestBuildMemoryOnly(t *testing.T) {
	out := NewModuleBuilder("api").WithMemory(2).Build()

	// Memory section: id 5, size 3, count 1, limits flag 0, min 2.
	memSection := []byte{0x05, 0x03, 0x01, 0x00, 0x02}
	if !bytes.Contains(out, memSection) {
		t.Errorf("memory section not found in % x", out)
	}
	// Export section names the memory.
	if !bytes.Contains(out, []byte("memory")) {
		t.Errorf("memory export name not found in % x", out)
	}
}

func TestBuildForwarderImportsAndExports(t *testing.T) {
	b := NewModuleBuilder("host_api")
	b.AddForward("write_region",
		[]api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		[]api.ValueType{api.ValueTypeI32})

	out := b.Build()
	if !bytes.Contains(out, []byte("host_api")) {
		t.Errorf("import module name not encoded")
	}
	if n := bytes.Count(out, []byte("write_region")); n != 2 {
		t.Errorf("expected function name in import and export sections, found %d occurrences", n)
	}
	// Forwarder body: no locals, local.get 0, local.get 1, call 0, end.
	body := []byte{0x00, 0x20, 0x00, 0x20, 0x01, 0x10, 0x00, 0x0b}
	if !bytes.Contains(out, body) {
		t.Errorf("forwarding body not found in % x", out)
	}
}

func TestBuildDeterministic(t *testing.T) {
	mk := func() []byte {
		b := NewModuleBuilder("api")
		b.AddForward("a", []api.ValueType{api.ValueTypeF32}, nil)
		b.AddForward("b", nil, []api.ValueType{api.ValueTypeI64})
		return b.WithMemory(1).Build()
	}
	if !bytes.Equal(mk(), mk()) {
		t.Error("Build output differs between runs")
	}
}

func TestEncodeULEB128(t *testing.T) {
	tests := []struct {
		v    uint32
		want []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range tests {
		if got := EncodeULEB128(tt.v); !bytes.Equal(got, tt.want) {
			t.Errorf("EncodeULEB128(%d) = % x, want % x", tt.v, got, tt.want)
		}
	}
}

func TestValTypeToWasm(t *testing.T) {
	if ValTypeToWasm(api.ValueTypeI32) != 0x7f {
		t.Error("i32 encoding wrong")
	}
	if ValTypeToWasm(api.ValueTypeI64) != 0x7e {
		t.Error("i64 encoding wrong")
	}
	if ValTypeToWasm(api.ValueTypeF32) != 0x7d {
		t.Error("f32 encoding wrong")
	}
	if ValTypeToWasm(api.ValueTypeF64) != 0x7c {
		t.Error("f64 encoding wrong")
	}
}

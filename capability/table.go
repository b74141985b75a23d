package capability

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	wasmbind "github.com/wasmbind/wasmbind"
	"github.com/wasmbind/wasmbind/apispec"
	"github.com/wasmbind/wasmbind/dispatch"
	"github.com/wasmbind/wasmbind/errors"
)

// SpecJSON describes the built-in capability bindings in the API spec
// format consumed by apispec.Parse and the bindgen tool.
const SpecJSON = `[
  {
    "name": "clock_time",
    "cname": "oc_clock_time",
    "ret": {"name": "double", "tag": "F"},
    "args": [
      {"name": "clock", "type": {"name": "oc_clock_kind", "tag": "i"}}
    ]
  },
  {
    "name": "bridge_log",
    "cname": "oc_bridge_log",
    "ret": {"name": "int", "tag": "i"},
    "args": [
      {"name": "level", "type": {"name": "oc_log_level", "tag": "i"}},
      {"name": "msg", "type": {"name": "const char *", "tag": "i"}, "len": {"count": "len"}},
      {"name": "len", "type": {"name": "int", "tag": "i"}}
    ]
  },
  {
    "name": "surface_create",
    "cname": "oc_surface_create",
    "ret": {"name": "oc_surface", "tag": "I"},
    "args": [
      {"name": "width", "type": {"name": "int", "tag": "i"}},
      {"name": "height", "type": {"name": "int", "tag": "i"}}
    ]
  },
  {
    "name": "surface_destroy",
    "cname": "oc_surface_destroy",
    "ret": {"name": "int", "tag": "i"},
    "args": [
      {"name": "surface", "type": {"name": "oc_surface", "tag": "I"}}
    ]
  },
  {
    "name": "surface_get_size",
    "cname": "oc_surface_get_size",
    "ret": {"name": "oc_vec2", "tag": "S"},
    "args": [
      {"name": "surface", "type": {"name": "oc_surface", "tag": "I"}}
    ]
  },
  {
    "name": "image_upload_region_rgba8",
    "cname": "oc_image_upload_region_rgba8",
    "ret": {"name": "int", "tag": "i"},
    "args": [
      {"name": "surface", "type": {"name": "oc_surface", "tag": "I"}},
      {"name": "rect", "type": {"name": "oc_rect", "tag": "S"}},
      {"name": "pixels", "type": {"name": "u8*", "tag": "i"},
       "len": {"proc": "oc_image_upload_region_rgba8_length", "args": ["rect"]}}
    ]
  }
]`

// Spec parses the built-in capability spec.
func Spec() (*apispec.Spec, error) {
	return apispec.Parse([]byte(SpecJSON))
}

// Host owns the built-in capability implementations.
type Host struct {
	Clock    *Clock
	Log      *LogSink
	Surfaces *SurfaceTable
}

// NewHost creates the capability set. Guest log records go to logger.
func NewHost(logger *zap.Logger) *Host {
	return &Host{
		Clock:    NewClock(),
		Log:      NewLogSink(logger),
		Surfaces: NewSurfaceTable(),
	}
}

// Table returns a host table holding every binding SpecJSON declares,
// ready to hand to dispatch.Registry.Bind.
func (h *Host) Table() (*dispatch.HostTable, error) {
	table := dispatch.NewHostTable()

	funcs := map[string]dispatch.HostFunc{
		"oc_clock_time":                h.clockTime,
		"oc_bridge_log":                h.bridgeLog,
		"oc_surface_create":            h.surfaceCreate,
		"oc_surface_destroy":           h.surfaceDestroy,
		"oc_surface_get_size":          h.surfaceGetSize,
		"oc_image_upload_region_rgba8": h.imageUploadRegionRGBA8,
	}
	for cname, fn := range funcs {
		if err := table.RegisterFunc(cname, fn); err != nil {
			return nil, err
		}
	}

	err := table.RegisterLengthProc("oc_image_upload_region_rgba8_length", imageUploadRegionRGBA8Length)
	if err != nil {
		return nil, err
	}
	return table, nil
}

func (h *Host) clockTime(_ context.Context, call *dispatch.Call) error {
	call.ReturnF64(h.Clock.Time(ClockKind(call.I32(0))))
	return nil
}

func (h *Host) bridgeLog(_ context.Context, call *dispatch.Call) error {
	h.Log.Log(LogLevel(call.I32(0)), call.Bytes(1))
	call.ReturnI32(0)
	return nil
}

func (h *Host) surfaceCreate(_ context.Context, call *dispatch.Call) error {
	handle, err := h.Surfaces.Create(uint32(call.I32(0)), uint32(call.I32(1)))
	if err != nil {
		return err
	}
	call.ReturnI64(int64(handle))
	return nil
}

func (h *Host) surfaceDestroy(_ context.Context, call *dispatch.Call) error {
	if h.Surfaces.Destroy(Handle(call.U64(0))) {
		call.ReturnI32(1)
	} else {
		call.ReturnI32(0)
	}
	return nil
}

func (h *Host) surfaceGetSize(_ context.Context, call *dispatch.Call) error {
	s, ok := h.Surfaces.Lookup(Handle(call.U64(0)))
	if !ok {
		return errors.NotFound(errors.PhaseHost, "surface", fmt.Sprintf("%#x", call.U64(0)))
	}
	ret := call.StructReturn()
	if err := ret.WriteF32(0, float32(s.Width)); err != nil {
		return err
	}
	return ret.WriteF32(4, float32(s.Height))
}

func (h *Host) imageUploadRegionRGBA8(_ context.Context, call *dispatch.Call) error {
	s, ok := h.Surfaces.Lookup(Handle(call.U64(0)))
	if !ok {
		return errors.NotFound(errors.PhaseHost, "surface", fmt.Sprintf("%#x", call.U64(0)))
	}

	rect := call.StructArg(1)
	var field [4]float32
	for i := range field {
		v, err := rect.ReadF32(uint32(i) * 4)
		if err != nil {
			return err
		}
		field[i] = v
	}

	err := s.UploadRegionRGBA8(
		uint32(field[0]), uint32(field[1]), uint32(field[2]), uint32(field[3]),
		call.Bytes(2))
	if err != nil {
		return err
	}
	call.ReturnI32(0)
	return nil
}

// imageUploadRegionRGBA8Length computes the pixel buffer size for an upload
// before the host function runs: w*h of the rect times 4 bytes per RGBA8
// pixel.
func imageUploadRegionRGBA8Length(_ context.Context, mem wasmbind.Memory, args []uint64) (uint32, error) {
	rect := dispatch.StructRef{Mem: mem, Off: uint32(args[0])}
	w, err := rect.ReadF32(8)
	if err != nil {
		return 0, err
	}
	h, err := rect.ReadF32(12)
	if err != nil {
		return 0, err
	}
	size := uint64(uint32(w)) * uint64(uint32(h)) * 4
	if size > math.MaxUint32 {
		return 0, errors.InvalidInput(errors.PhaseHost, "upload rect overflows the pixel buffer size")
	}
	return uint32(size), nil
}

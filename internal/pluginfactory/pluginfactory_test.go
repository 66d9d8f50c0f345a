package pluginfactory

import (
	"errors"
	"testing"

	"github.com/CESNET/ipfixprobe-go/internal/flowrecord"
	"github.com/CESNET/ipfixprobe-go/internal/pluginrt"
)

// noopPlugin is the minimal pluginrt.ProcessPlugin fixture these tests
// construct through a Factory, standing in for a real plugin package.
type noopPlugin struct{ options string }

func (p *noopPlugin) Name() string                 { return "noop" }
func (p *noopPlugin) Group() string                 { return "noop" }
func (p *noopPlugin) Flags() pluginrt.OverrideFlags { return pluginrt.OverrideFlags{} }
func (p *noopPlugin) ContextSpec() flowrecord.PluginSpec {
	return flowrecord.PluginSpec{Name: "noop", Size: 0, Align: 1}
}
func (p *noopPlugin) OnInit(*flowrecord.Record, int, *pluginrt.Packet) pluginrt.InitResult {
	return pluginrt.ConstructedFinal
}
func (p *noopPlugin) BeforeUpdate(*flowrecord.Record, int, *pluginrt.Packet) pluginrt.BeforeUpdateResult {
	return pluginrt.BeforeUpdateNoAction
}
func (p *noopPlugin) OnUpdate(*flowrecord.Record, int, *pluginrt.Packet) pluginrt.UpdateResult {
	return pluginrt.Final
}
func (p *noopPlugin) OnExport(*flowrecord.Record, int) pluginrt.ExportResult {
	return pluginrt.ExportNoAction
}
func (p *noopPlugin) OnDestroy(*flowrecord.Record, int) {}

func newFactory() *Factory {
	return &Factory{entries: make(map[string]entry)}
}

func TestRegisterAndConstruct(t *testing.T) {
	f := newFactory()

	err := f.Register(Manifest{Name: "noop", Description: "does nothing"}, func(options string) (pluginrt.ProcessPlugin, error) {
		return &noopPlugin{options: options}, nil
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := f.Construct("noop", "foo=bar")
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}
	np, ok := p.(*noopPlugin)
	if !ok {
		t.Fatalf("expected *noopPlugin, got %T", p)
	}
	if np.options != "foo=bar" {
		t.Fatalf("expected constructor to receive options string, got %q", np.options)
	}
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	f := newFactory()
	ctor := func(string) (pluginrt.ProcessPlugin, error) { return &noopPlugin{}, nil }

	if err := f.Register(Manifest{Name: "dup"}, ctor); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := f.Register(Manifest{Name: "dup"}, ctor)
	if !errors.Is(err, ErrDuplicatePlugin) {
		t.Fatalf("expected ErrDuplicatePlugin, got %v", err)
	}
}

func TestConstructUnknownPluginFails(t *testing.T) {
	f := newFactory()
	if _, err := f.Construct("missing", ""); !errors.Is(err, ErrUnknownPlugin) {
		t.Fatalf("expected ErrUnknownPlugin, got %v", err)
	}
}

func TestNamesReturnsSortedRegisteredNames(t *testing.T) {
	f := newFactory()
	ctor := func(string) (pluginrt.ProcessPlugin, error) { return &noopPlugin{}, nil }
	for _, name := range []string{"quic", "basic", "dns"} {
		if err := f.Register(Manifest{Name: name}, ctor); err != nil {
			t.Fatalf("Register %q: %v", name, err)
		}
	}

	names := f.Names()
	want := []string{"basic", "dns", "quic"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

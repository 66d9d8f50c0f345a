package export

import (
	"testing"
	"time"

	"github.com/CESNET/ipfixprobe-go/internal/fieldregistry"
)

func testRegistry(t *testing.T) *fieldregistry.Registry {
	t.Helper()
	reg := fieldregistry.New()
	if _, err := reg.RegisterScalar("basic", "bytes", noopGetter); err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestTemplateCacheResolveBuildsOnceAndMarksUnsentInitially(t *testing.T) {
	cache := NewTemplateCache(testRegistry(t), testBindings(t), true, 0, 0)
	key := TemplateKey{Bitmask: 1, Family: FamilyIPv4, View: ViewBiflowForward}

	tmpl1, needsSend, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !needsSend {
		t.Fatal("a brand-new template must need sending")
	}

	tmpl2, needsSend2, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if tmpl1 != tmpl2 {
		t.Fatal("same key must return the same cached *Template instance")
	}
	if !needsSend2 {
		t.Fatal("resolving again before MarkSent should still report needsSend from the original Unsent state")
	}
}

func TestTemplateCacheStreamModeNeverRefreshesOnSchedule(t *testing.T) {
	cache := NewTemplateCache(testRegistry(t), testBindings(t), true, time.Nanosecond, 1)
	key := TemplateKey{Bitmask: 1, Family: FamilyIPv4, View: ViewBiflowForward}

	_, _, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	cache.MarkSent(key)
	cache.MarkExported(key)
	time.Sleep(time.Millisecond)

	_, needsSend, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	if needsSend {
		t.Fatal("stream mode must never resend on interval/count schedule")
	}
}

func TestTemplateCacheUDPRefreshesByExportCount(t *testing.T) {
	cache := NewTemplateCache(testRegistry(t), testBindings(t), false, time.Hour, 2)
	key := TemplateKey{Bitmask: 1, Family: FamilyIPv4, View: ViewBiflowForward}

	_, _, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	cache.MarkSent(key)
	cache.MarkExported(key)
	cache.MarkExported(key)

	_, needsSend, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	if !needsSend {
		t.Fatal("expected a refresh after reaching refreshExports")
	}
}

func TestTemplateCacheMarkAllUnsentForcesRetransmission(t *testing.T) {
	cache := NewTemplateCache(testRegistry(t), testBindings(t), true, 0, 0)
	key := TemplateKey{Bitmask: 1, Family: FamilyIPv4, View: ViewBiflowForward}

	_, _, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	cache.MarkSent(key)

	cache.MarkAllUnsent()

	_, needsSend, err := cache.Resolve(key, []string{"basic"})
	if err != nil {
		t.Fatal(err)
	}
	if !needsSend {
		t.Fatal("MarkAllUnsent must force the next Resolve to report needsSend")
	}
}

package optparse

import "testing"

func TestParseRequiredAndNoArgument(t *testing.T) {
	p := New("dns", "DNS plugin options")
	var host string
	var verbose bool

	if err := p.Register("h", "host", "HOST", "collector host", RequiredArgument, func(v string) error {
		host = v
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := p.Register("v", "verbose", "", "verbose mode", NoArgument, func(v string) error {
		verbose = true
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	if err := p.Parse("host=10.0.0.1;verbose"); err != nil {
		t.Fatal(err)
	}
	if host != "10.0.0.1" {
		t.Fatalf("expected host=10.0.0.1, got %q", host)
	}
	if !verbose {
		t.Fatal("expected verbose flag set")
	}
}

func TestParseColonSeparator(t *testing.T) {
	p := New("test", "")
	var port string
	if err := p.Register("", "port", "", "", RequiredArgument, func(v string) error {
		port = v
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := p.Parse("port:4739"); err != nil {
		t.Fatal(err)
	}
	if port != "4739" {
		t.Fatalf("expected port=4739, got %q", port)
	}
}

func TestParseUnknownOptionFails(t *testing.T) {
	p := New("test", "")
	if err := p.Parse("bogus=1"); err == nil {
		t.Fatal("expected error for unknown option")
	}
}

func TestParseMissingRequiredArgumentFails(t *testing.T) {
	p := New("test", "")
	if err := p.Register("", "host", "", "", RequiredArgument, func(string) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := p.Parse("host"); err == nil {
		t.Fatal("expected error for missing required argument")
	}
}

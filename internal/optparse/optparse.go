// Package optparse implements the plugin option-string grammar described
// in SPEC_FULL.md section 4: a flat "name=value;name;name:value" grammar
// with a configurable delimiter, grounded on
// original_source/include/ipfixprobe/options.hpp's OptionsParser, but
// re-expressed as functional options registered against a *Parser that
// returns a typed error instead of throwing ParserError.
package optparse

import (
	"fmt"
	"strings"
)

// ArgMode mirrors OptionsParser::OptionFlags: whether an option requires,
// optionally accepts, or never accepts an argument.
type ArgMode int

const (
	RequiredArgument ArgMode = iota
	OptionalArgument
	NoArgument
)

// Func is called with the raw argument text (empty for NoArgument options)
// once per occurrence of the option in the parsed string.
type Func func(value string) error

type option struct {
	short, long string
	hint        string
	description string
	mode        ArgMode
	fn          Func
}

// Parser is one plugin's option grammar: a delimiter plus a set of
// registered short/long option names, matching one OptionsParser instance
// in the original.
type Parser struct {
	name  string
	info  string
	delim byte

	options []*option
	long    map[string]*option
	short   map[string]*option
}

// DefaultDelimiter is OptionsParser::DELIM.
const DefaultDelimiter = ';'

// New builds a parser for a plugin named name (used only in error
// messages and usage text).
func New(name, info string) *Parser {
	return &Parser{
		name:  name,
		info:  info,
		delim: DefaultDelimiter,
		long:  make(map[string]*option),
		short: make(map[string]*option),
	}
}

// SetDelimiter overrides the default ';' option delimiter.
func (p *Parser) SetDelimiter(d byte) { p.delim = d }

// Register adds one option, under its short and/or long aliases (either
// may be empty, but not both), with the given argument mode.
func (p *Parser) Register(short, long, hint, description string, mode ArgMode, fn Func) error {
	if short == "" && long == "" {
		return fmt.Errorf("%w: option with no short or long alias in parser %q", ErrInvalidOption, p.name)
	}
	opt := &option{short: short, long: long, hint: hint, description: description, mode: mode, fn: fn}
	if short != "" {
		if _, dup := p.short[short]; dup {
			return fmt.Errorf("%w: duplicate short option %q in parser %q", ErrInvalidOption, short, p.name)
		}
		p.short[short] = opt
	}
	if long != "" {
		if _, dup := p.long[long]; dup {
			return fmt.Errorf("%w: duplicate long option %q in parser %q", ErrInvalidOption, long, p.name)
		}
		p.long[long] = opt
	}
	p.options = append(p.options, opt)
	return nil
}

// Parse splits args on the parser's delimiter and dispatches each token,
// matching OptionsParser::parse(const char *). Each token is one of:
//
//	name=value   (RequiredArgument or OptionalArgument)
//	name:value   (same, alternate separator, as in options.hpp)
//	name         (NoArgument, or OptionalArgument with no value)
func (p *Parser) Parse(args string) error {
	if args == "" {
		return nil
	}
	for _, tok := range strings.Split(args, string(p.delim)) {
		if tok == "" {
			continue
		}
		if err := p.parseToken(tok); err != nil {
			return err
		}
	}
	return nil
}

func (p *Parser) parseToken(tok string) error {
	name, value, hasValue := splitAssignment(tok)

	opt, ok := p.long[name]
	if !ok {
		opt, ok = p.short[name]
	}
	if !ok {
		return fmt.Errorf("%w: unknown option %q in parser %q", ErrUnknownOption, name, p.name)
	}

	switch opt.mode {
	case RequiredArgument:
		if !hasValue {
			return fmt.Errorf("%w: option %q requires an argument", ErrMissingArgument, name)
		}
	case NoArgument:
		if hasValue {
			return fmt.Errorf("%w: option %q takes no argument", ErrUnexpectedArgument, name)
		}
	case OptionalArgument:
		// value may legitimately be empty
	}

	return opt.fn(value)
}

// splitAssignment recognizes both "name=value" and "name:value", matching
// options.hpp's behavior of accepting either separator.
func splitAssignment(tok string) (name, value string, hasValue bool) {
	if i := strings.IndexAny(tok, "=:"); i >= 0 {
		return tok[:i], tok[i+1:], true
	}
	return tok, "", false
}

package ssi

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// NativeHandler is a Go function registered under a C function name,
// invoked with the callee's evaluated argument Values.
type NativeHandler func(tr *Trace, args []*Value) (*Value, error)

// BreakHandler fires before the interpreter executes the source line it is
// attached to; it typically drives a REPL.
type BreakHandler func(in *Interpreter)

// StepResult is Step's only non-error, non-EOF outcome: a return value
// bubbling up to the step loop's caller.
type StepResult struct {
	Value *Value
}

// ModuleHooks records the probe/remove entry points a driver declares via
// module_init/module_exit calls, discovered during GlobalsPass.
type ModuleHooks struct {
	Init string
	Exit string
}

// loopCtx is the break/continue target pair a lowered loop or switch
// pushes while its body is being executed.
type loopCtx struct {
	breakLabel    string
	continueLabel string // empty for a switch: continue does not target it
	endBraceIdx   int
}

// Interpreter is the symbolic execution engine's external handle: one
// lexeme stream, one execution head, one Trace, plus the host-registered
// callbacks and bookkeeping that make up the external interface.
type Interpreter struct {
	Stream  *LexemeStream
	Grammar *Grammar
	Trace   *Trace
	Head    int

	Handlers       map[string]NativeHandler
	DefaultHandler NativeHandler
	VerboseFns     map[string][]string
	BreakLines     map[int]BreakHandler

	hooks         ModuleHooks
	inGlobalsPass bool
	loopBodies    map[int]loopCtx // open-brace stream index -> its loop context
	loopStack     []loopCtx
}

// NewInterpreter loads and lexes the C source file at path.
func NewInterpreter(path string) (*Interpreter, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewInterpreterFromSource(string(text))
}

// NewInterpreterFromSource builds an Interpreter directly from source
// text, without touching the filesystem (used by tests and ExecC-style
// embedding scenarios).
func NewInterpreterFromSource(text string) (*Interpreter, error) {
	stream, err := NewLexemeStream(text, DefaultCRules())
	if err != nil {
		return nil, err
	}
	return &Interpreter{
		Stream:     stream,
		Grammar:    BuildCGrammar(),
		Trace:      NewTrace(),
		Handlers:   map[string]NativeHandler{},
		VerboseFns: map[string][]string{},
		BreakLines: map[int]BreakHandler{},
		loopBodies: map[int]loopCtx{},
	}, nil
}

// RegisterFn registers handler under name. An empty name registers the
// default handler invoked for callees with no specific registration
// (register_fn(null, handler) in the language-neutral interface).
func (in *Interpreter) RegisterFn(name string, handler NativeHandler) {
	if name == "" {
		in.DefaultHandler = handler
		return
	}
	in.Handlers[name] = handler
}

// VerboseFn attaches a list of format specifiers used to pretty-print
// name's arguments at each call site.
func (in *Interpreter) VerboseFn(name string, formatters []string) {
	in.VerboseFns[name] = formatters
}

// BreakLine attaches handler to fire before executing source line.
func (in *Interpreter) BreakLine(line int, handler BreakHandler) {
	in.BreakLines[line] = handler
}

// ModuleHooks returns the module_init/module_exit entry points seen during
// GlobalsPass, if any.
func (in *Interpreter) ModuleHooks() ModuleHooks { return in.hooks }

// SetToLine sets the execution head to the first *original* (non-pseudo)
// lexeme at or after line: a breakpoint set by a human should land on real
// source even if control-flow lowering has since introduced pseudo
// lexemes anchored nearby.
func (in *Interpreter) SetToLine(line int) error {
	for i := 0; i < in.Stream.Len(); i++ {
		lx := in.Stream.At(i)
		if !lx.IsPseudo() && lx.Line() >= line {
			in.Head = i
			return nil
		}
	}
	return NewInvariantError("no source lexeme at or after line %d", line)
}

// GlobalsPass runs step-until-end in globals mode: function definitions
// are registered as locals (their pointer bound by name) and module_init/
// module_exit calls are recorded in ModuleHooks, without actually invoking
// anything.
func (in *Interpreter) GlobalsPass() error {
	in.inGlobalsPass = true
	defer func() { in.inGlobalsPass = false }()
	in.Head = 0
	for {
		_, err := in.Step()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ExecC injects "void ___ssi_code(){ return <template>; }" with each {i}
// placeholder replaced by a fresh unique identifier, binds that identifier
// in a new scope to args[i], runs the synthesised function to completion,
// and returns its return value. Stream position is saved and restored.
func (in *Interpreter) ExecC(template string, args ...*Value) (*Value, error) {
	names := make([]string, len(args))
	text := template
	for i := range args {
		names[i] = fmt.Sprintf("___a%d", in.Trace.NextID())
		text = strings.ReplaceAll(text, fmt.Sprintf("{%d}", i), names[i])
	}
	body := fmt.Sprintf("void ___ssi_code(){ return %s; }", text)

	end := in.Stream.Len()
	in.Trace.Freeze()
	err := Prepend(in.Stream, end, body, nil)
	in.Trace.Unfreeze()
	if err != nil {
		return nil, err
	}

	openBrace := -1
	for i := end; i < in.Stream.Len(); i++ {
		if in.Stream.At(i).Is("{") {
			openBrace = i
			break
		}
	}
	if openBrace < 0 {
		return nil, NewInvariantError("ExecC: synthesised function body not found")
	}
	if err := in.ReturnifyFn(openBrace); err != nil {
		return nil, err
	}

	savedHead := in.Head
	savedLoopStack := in.loopStack
	in.loopStack = nil
	in.Trace.Scope.Push(names, args)
	in.Head = openBrace + 1
	var result *Value
	for {
		res, err := in.Step()
		if err == io.EOF {
			break
		}
		if err != nil {
			in.Trace.Scope.Pop()
			in.Head = savedHead
			in.loopStack = savedLoopStack
			return nil, err
		}
		if res != nil {
			result = res.Value
			break
		}
	}
	in.Trace.Scope.Pop()
	in.Head = savedHead
	in.loopStack = savedLoopStack
	return result, nil
}

// ReturnifyFn ensures the function body opened by the "{" at stream index
// openBrace ends with a return statement, appending a bare "return;" just
// before the closing "}" if the last statement isn't already one.
func (in *Interpreter) ReturnifyFn(openBrace int) error {
	closeBrace, err := in.matchingClose(openBrace)
	if err != nil {
		return err
	}
	pos := openBrace + 1
	lastLabel := ""
	for pos < closeBrace {
		toks := in.Stream.Slice(pos, closeBrace)
		label, _, n, ok := ParseOneStatement(in.Grammar, toks)
		if !ok || n == 0 {
			break
		}
		lastLabel = label
		pos += n
	}
	if lastLabel == "Return" {
		return nil
	}
	return Rewrite(in.Stream, closeBrace, closeBrace, "return;", nil, false)
}

func (in *Interpreter) matchingClose(openBrace int) (int, error) {
	depth := 1
	i := openBrace + 1
	for i < in.Stream.Len() {
		switch {
		case in.Stream.At(i).Is("{"):
			depth++
		case in.Stream.At(i).Is("}"):
			depth--
			if depth == 0 {
				return i, nil
			}
		}
		i++
	}
	return 0, NewInvariantError("unbalanced braces starting at %d", openBrace)
}

// deref mirrors the IR's (* v) op: force v to a memory cell and load its
// stored content. Two shapes pass through unchanged instead of being forced:
// a Value that is already concrete and not itself a Memref (e.g. the result
// of a nested binary op, already a plain scalar), and a deferred expression
// that isn't pointer arithmetic (e.g. a symbolic comparison like `x == 0`
// with x opaque) - concretizeDeferredMemref only resolves pointer +/- int
// shifts, and a comparison or general arithmetic deferred value is already
// the value callers want, not an address to force.
func (in *Interpreter) deref(v *Value) (*Value, error) {
	canon := v.Find()
	if canon.Concrete {
		if _, isMemref := canon.Payload.(*Memref); !isMemref {
			return canon, nil
		}
	} else if _, isDeferred := canon.Payload.(deferredExpr); isDeferred {
		return canon, nil
	}
	mem, err := in.Trace.ConcretizeMemref(v)
	if err != nil {
		return nil, err
	}
	return mem.GetValue(in.Trace), nil
}

// gotoLabel sets the head to the lexeme immediately after "name :",
// located by a linear scan over the whole stream (label uniqueness is
// assumed global).
func (in *Interpreter) gotoLabel(name string) error {
	for i := 0; i+1 < in.Stream.Len(); i++ {
		if in.Stream.At(i).Kind == KindIdent && in.Stream.At(i).Is(name) && in.Stream.At(i+1).Is(":") {
			in.Head = i + 2
			return nil
		}
	}
	return NewInvariantError("label %s not found", name)
}

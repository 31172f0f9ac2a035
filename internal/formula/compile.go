package formula

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Kind is the result type a compiled program produces.
type Kind int

const (
	// Value programs yield a number (weights and draw variables).
	Value Kind = iota
	// Selection programs yield a boolean cut decision.
	Selection
)

type function struct {
	arity int
	fn    func(args []float64) float64
}

// builtins are the bare function names ROOT formulas accept.
var builtins = map[string]function{
	"abs":   {1, func(a []float64) float64 { return math.Abs(a[0]) }},
	"sqrt":  {1, func(a []float64) float64 { return math.Sqrt(a[0]) }},
	"exp":   {1, func(a []float64) float64 { return math.Exp(a[0]) }},
	"log":   {1, func(a []float64) float64 { return math.Log(a[0]) }},
	"log10": {1, func(a []float64) float64 { return math.Log10(a[0]) }},
	"pow":   {2, func(a []float64) float64 { return math.Pow(a[0], a[1]) }},
	"min":   {2, func(a []float64) float64 { return math.Min(a[0], a[1]) }},
	"max":   {2, func(a []float64) float64 { return math.Max(a[0], a[1]) }},
	"sin":   {1, func(a []float64) float64 { return math.Sin(a[0]) }},
	"cos":   {1, func(a []float64) float64 { return math.Cos(a[0]) }},
	"tan":   {1, func(a []float64) float64 { return math.Tan(a[0]) }},
	"atan2": {2, func(a []float64) float64 { return math.Atan2(a[0], a[1]) }},
}

var namespaced = map[string]function{
	"TMath::Abs":   builtins["abs"],
	"TMath::Sqrt":  builtins["sqrt"],
	"TMath::Exp":   builtins["exp"],
	"TMath::Log":   builtins["log"],
	"TMath::Log10": builtins["log10"],
	"TMath::Power": builtins["pow"],
	"TMath::Min":   builtins["min"],
	"TMath::Max":   builtins["max"],
	"TMath::Sin":   builtins["sin"],
	"TMath::Cos":   builtins["cos"],
	"TMath::Tan":   builtins["tan"],
	"TMath::ATan2": builtins["atan2"],
	"TMath::Hypot": {2, func(a []float64) float64 { return math.Hypot(a[0], a[1]) }},
	"TMath::Pi":    {0, func([]float64) float64 { return math.Pi }},
	"std::abs":     builtins["abs"],
	"std::sqrt":    builtins["sqrt"],
	"std::pow":     builtins["pow"],
	"std::min":     builtins["min"],
	"std::max":     builtins["max"],
}

func lookupFunction(name string) (function, bool) {
	if f, ok := builtins[name]; ok {
		return f, true
	}
	f, ok := namespaced[name]
	return f, ok
}

// exprName maps a formula function name onto an expr-lang identifier.
func exprName(name string) string {
	return "fn_" + strings.ReplaceAll(name, "::", "__")
}

// Program is a compiled expression bound to its field list. A Program
// reuses its evaluation environment and is not safe for concurrent use;
// call Compiler.Compile per goroutine.
type Program struct {
	Source string
	Kind   Kind
	Fields []string

	program *vm.Program
	env     map[string]any
	vm      vm.VM
}

// Eval evaluates the program against one row. Selections return 1 or 0.
// Fields missing from row evaluate as 0.
func (p *Program) Eval(row map[string]float64) (float64, error) {
	for i, f := range p.Fields {
		p.env[slot(i)] = row[f]
	}
	out, err := p.vm.Run(p.program, p.env)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", p.Source, err)
	}
	switch v := out.(type) {
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return float64(v), nil
	}
	return 0, fmt.Errorf("evaluate %q: unexpected result type %T", p.Source, out)
}

// Pass evaluates a selection program.
func (p *Program) Pass(row map[string]float64) (bool, error) {
	v, err := p.Eval(row)
	return v != 0, err
}

type compiled struct {
	program *vm.Program
	fields  []string
}

// Compiler compiles formulas into expr-lang programs and caches the
// compiled bytecode by source and kind.
type Compiler struct {
	mu    sync.RWMutex
	cache map[string]compiled
	opts  []expr.Option
}

// NewCompiler creates a compiler with every supported function registered.
func NewCompiler() *Compiler {
	c := &Compiler{cache: make(map[string]compiled)}
	register := func(name string, f function) {
		fn := f.fn
		arity := f.arity
		c.opts = append(c.opts, expr.Function(exprName(name), func(params ...any) (any, error) {
			if len(params) != arity {
				return nil, fmt.Errorf("%s expects %d arguments, got %d", name, arity, len(params))
			}
			args := make([]float64, arity)
			for i, p := range params {
				v, ok := p.(float64)
				if !ok {
					return nil, fmt.Errorf("%s argument %d: expected number, got %T", name, i, p)
				}
				args[i] = v
			}
			return fn(args), nil
		}, signature(arity)))
	}
	for name, f := range builtins {
		register(name, f)
	}
	for name, f := range namespaced {
		register(name, f)
	}
	return c
}

func signature(arity int) any {
	switch arity {
	case 0:
		return new(func() float64)
	case 1:
		return new(func(float64) float64)
	default:
		return new(func(float64, float64) float64)
	}
}

// Compile parses and compiles src. An empty selection always passes and
// an empty value is the constant 1.
func (c *Compiler) Compile(src string, kind Kind) (*Program, error) {
	key := strconv.Itoa(int(kind)) + "|" + src

	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()

	if !ok {
		var err error
		cached, err = c.compile(src, kind)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cache[key] = cached
		c.mu.Unlock()
	}

	env := make(map[string]any, len(cached.fields))
	for i := range cached.fields {
		env[slot(i)] = 0.0
	}
	return &Program{
		Source:  src,
		Kind:    kind,
		Fields:  cached.fields,
		program: cached.program,
		env:     env,
	}, nil
}

func (c *Compiler) compile(src string, kind Kind) (compiled, error) {
	var (
		lowered string
		fields  []string
	)
	if strings.TrimSpace(src) == "" {
		lowered = "1.0"
		if kind == Selection {
			lowered = "true"
		}
	} else {
		tree, err := Parse(src)
		if err != nil {
			return compiled{}, err
		}
		l := &lowerer{slots: make(map[string]int)}
		if kind == Selection {
			lowered, err = l.boolean(tree)
		} else {
			lowered, err = l.number(tree)
		}
		if err != nil {
			return compiled{}, fmt.Errorf("compile %q: %w", src, err)
		}
		fields = l.fields
	}

	env := make(map[string]any, len(fields))
	for i := range fields {
		env[slot(i)] = 0.0
	}
	opts := append([]expr.Option{expr.Env(env)}, c.opts...)
	if kind == Selection {
		opts = append(opts, expr.AsBool())
	} else {
		opts = append(opts, expr.AsFloat64())
	}
	program, err := expr.Compile(lowered, opts...)
	if err != nil {
		return compiled{}, fmt.Errorf("compile %q: %w", src, err)
	}
	return compiled{program: program, fields: fields}, nil
}

func slot(i int) string { return "f" + strconv.Itoa(i) }

// lowerer rewrites a formula tree as expr-lang source. ROOT formulas mix
// numbers and booleans freely; expr-lang does not, so every boundary gets
// an explicit conversion.
type lowerer struct {
	slots  map[string]int
	fields []string
}

func (l *lowerer) field(name string) string {
	i, ok := l.slots[name]
	if !ok {
		i = len(l.fields)
		l.slots[name] = i
		l.fields = append(l.fields, name)
	}
	return slot(i)
}

func isBoolNode(n Node) bool {
	switch v := n.(type) {
	case Unary:
		return v.Op == "!"
	case Binary:
		switch v.Op {
		case "&&", "||", "==", "!=", "<", "<=", ">", ">=":
			return true
		}
	}
	return false
}

func (l *lowerer) number(n Node) (string, error) {
	if isBoolNode(n) {
		b, err := l.boolean(n)
		if err != nil {
			return "", err
		}
		return "(" + b + " ? 1.0 : 0.0)", nil
	}
	switch v := n.(type) {
	case Field:
		return l.field(v.Name), nil
	case Number:
		return literal(v.Value), nil
	case Unary:
		x, err := l.number(v.X)
		if err != nil {
			return "", err
		}
		if v.Op == "+" {
			return x, nil
		}
		return "(-" + x + ")", nil
	case Binary:
		left, err := l.number(v.L)
		if err != nil {
			return "", err
		}
		right, err := l.number(v.R)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + v.Op + " " + right + ")", nil
	case Call:
		f, ok := lookupFunction(v.Func)
		if !ok {
			return "", fmt.Errorf("unknown function %s", v.Func)
		}
		if len(v.Args) != f.arity {
			return "", fmt.Errorf("%s expects %d arguments, got %d", v.Func, f.arity, len(v.Args))
		}
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			s, err := l.number(a)
			if err != nil {
				return "", err
			}
			args[i] = s
		}
		return exprName(v.Func) + "(" + strings.Join(args, ", ") + ")", nil
	}
	return "", fmt.Errorf("unsupported node %T", n)
}

func (l *lowerer) boolean(n Node) (string, error) {
	if !isBoolNode(n) {
		x, err := l.number(n)
		if err != nil {
			return "", err
		}
		return "(" + x + " != 0.0)", nil
	}
	switch v := n.(type) {
	case Unary:
		x, err := l.boolean(v.X)
		if err != nil {
			return "", err
		}
		return "(!" + x + ")", nil
	case Binary:
		if v.Op == "&&" || v.Op == "||" {
			left, err := l.boolean(v.L)
			if err != nil {
				return "", err
			}
			right, err := l.boolean(v.R)
			if err != nil {
				return "", err
			}
			return "(" + left + " " + v.Op + " " + right + ")", nil
		}
		left, err := l.number(v.L)
		if err != nil {
			return "", err
		}
		right, err := l.number(v.R)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + v.Op + " " + right + ")", nil
	}
	return "", fmt.Errorf("unsupported node %T", n)
}

// literal always renders a float so expr-lang never sees integer
// arithmetic or an out of range integer constant.
func literal(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

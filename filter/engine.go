package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// ExprHook can rewrite or replace a lowered expression tree.
//
// Hooks run after CEL parsing, type-checking and binding resolution, right
// before Program.Expr returns.
//
// Returning (nil, nil) keeps the current expression unchanged.
type ExprHook func(schema Schema, source string, expr Expr) (Expr, error)

type engineConfig struct {
	envOptions []cel.EnvOption
	exprHooks  []ExprHook
	predicates map[string]NamedPredicate
}

// EngineOption customizes Engine construction.
type EngineOption func(*engineConfig)

// WithEnvOptions appends additional CEL environment options when creating the Engine.
//
// This is the intended extension point for registering custom CEL macros,
// functions and variable declarations.
func WithEnvOptions(opts ...cel.EnvOption) EngineOption {
	return func(cfg *engineConfig) {
		cfg.envOptions = append(cfg.envOptions, opts...)
	}
}

// WithMacros is a convenience helper for registering custom CEL macros.
func WithMacros(macros ...cel.Macro) EngineOption {
	if len(macros) == 0 {
		return func(*engineConfig) {}
	}
	return WithEnvOptions(cel.Macros(macros...))
}

// WithExprHook appends a hook which can rewrite the lowered expression tree.
func WithExprHook(hook ExprHook) EngineOption {
	return func(cfg *engineConfig) {
		if hook == nil {
			return
		}
		cfg.exprHooks = append(cfg.exprHooks, hook)
	}
}

// Engine compiles CEL filters into OData expression trees.
type Engine struct {
	schema Schema
	env    *cel.Env

	exprHooks  []ExprHook
	predicates map[string]NamedPredicate
}

// NewEngine builds a new Engine for the provided schema.
//
// Schema fields are declared as CEL variables automatically unless the schema
// already carries its own EnvOptions.
func NewEngine(schema Schema, opts ...EngineOption) (*Engine, error) {
	cfg := &engineConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}

	envOpts := make([]cel.EnvOption, 0, len(schema.EnvOptions)+len(cfg.envOptions)+len(schema.Fields)+2)
	if len(schema.EnvOptions) == 0 {
		for name, field := range schema.Fields {
			if field == nil {
				continue
			}
			envOpts = append(envOpts, cel.Variable(name, field.Type.celType()))
		}
	}
	envOpts = append(envOpts, schema.EnvOptions...)
	envOpts = append(envOpts, cfg.envOptions...)
	envOpts = append(envOpts, NowFunction)
	if len(cfg.predicates) != 0 {
		envOpts = append(envOpts, ODataFunction)
	}

	env, err := cel.NewEnv(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &Engine{
		schema:     schema,
		env:        env,
		exprHooks:  cfg.exprHooks,
		predicates: cfg.predicates,
	}, nil
}

// Program stores a compiled filter.
type Program struct {
	schema Schema
	source string
	root   node
	hooks  []ExprHook
}

// Source returns the CEL source the program was compiled from.
func (p *Program) Source() string {
	return p.source
}

// Expr lowers the program into an OData expression, resolving variables that
// are not schema fields from bindings.
func (p *Program) Expr(bindings Bindings) (Expr, error) {
	expr, err := lower(p.root, bindings)
	if err != nil {
		return nil, err
	}
	for _, hook := range p.hooks {
		next, err := hook(p.schema, p.source, expr)
		if err != nil {
			return nil, err
		}
		if next != nil {
			expr = next
		}
	}
	return expr, nil
}

// Compile parses and type-checks the CEL source.
func (e *Engine) Compile(source string) (*Program, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("filter expression is empty")
	}

	ast, issues := e.env.Compile(source)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile filter: %w", issues.Err())
	}
	parsed, err := cel.AstToParsedExpr(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to convert AST: %w", err)
	}

	root, err := buildNode(parsed.GetExpr(), e.schema, e.predicates)
	if err != nil {
		return nil, err
	}

	return &Program{
		schema: e.schema,
		source: source,
		root:   root,
		hooks:  e.exprHooks,
	}, nil
}

// CompileExpr compiles and lowers the filter in a single step.
func (e *Engine) CompileExpr(source string, bindings Bindings) (Expr, error) {
	program, err := e.Compile(source)
	if err != nil {
		return nil, err
	}
	return program.Expr(bindings)
}

// CompileString compiles, lowers and renders the filter in a single step.
func (e *Engine) CompileString(source string, bindings Bindings) (string, error) {
	expr, err := e.CompileExpr(source, bindings)
	if err != nil {
		return "", err
	}
	return Render(expr), nil
}

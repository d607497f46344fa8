package policy

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
)

// Decision is the policy gate's verdict for one envelope or capability
// check. Denials never throw; they are returned for the caller to
// count and log.
type Decision struct {
	Granted bool
	Reason  string
}

var allowedHTTPMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true, "HEAD": true, "PATCH": true,
}

// Scheme identifies the routed scheme family for an api.call URL.
type Scheme string

const (
	SchemeUICPCompute Scheme = "uicp.compute"
	SchemeUICPIntent  Scheme = "uicp.intent"
	SchemeTauriFS     Scheme = "tauri.fs"
	SchemeHTTP        Scheme = "http"
	SchemeUnknown     Scheme = "unknown"
)

// RouteScheme classifies rawURL per the api.call scheme routing rules:
// only uicp://, tauri://fs/*, and http(s):// are recognized.
func RouteScheme(rawURL string) Scheme {
	switch {
	case rawURL == "uicp://compute.call" || strings.HasPrefix(rawURL, "uicp://compute.call?"):
		return SchemeUICPCompute
	case strings.HasPrefix(rawURL, "uicp://intent"):
		return SchemeUICPIntent
	case strings.HasPrefix(rawURL, "tauri://fs/"):
		return SchemeTauriFS
	}
	if u, err := url.Parse(rawURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return SchemeHTTP
	}
	return SchemeUnknown
}

// BaseDir is a filesystem write target for tauri://fs/writeTextFile.
type BaseDir string

const (
	BaseDirAppConfig    BaseDir = "AppConfig"
	BaseDirAppData      BaseDir = "AppData"
	BaseDirAppLocalData BaseDir = "AppLocalData"
	BaseDirDocument     BaseDir = "Document"
	BaseDirDesktop      BaseDir = "Desktop"
	BaseDirDownload     BaseDir = "Download"
)

var knownBaseDirs = map[BaseDir]bool{
	BaseDirAppConfig: true, BaseDirAppData: true, BaseDirAppLocalData: true,
	BaseDirDocument: true, BaseDirDesktop: true, BaseDirDownload: true,
}

// Gate evaluates policy decisions for dispatched operations: HTTP
// method allowlist, URL scheme routing, filesystem base directories,
// and capability subsets for compute tasks. Operator-authored rules
// beyond these built-ins are expressed as CEL expressions via Check.
type Gate struct {
	devWriteDesktop bool

	mu    sync.Mutex
	env   *cel.Env
	rules map[string]cel.Program
}

// NewGate builds a policy gate. devWriteDesktop gates whether
// tauri://fs writes to the Desktop base directory are permitted.
func NewGate(devWriteDesktop bool) (*Gate, error) {
	env, err := cel.NewEnv(
		cel.Variable("op", cel.StringType),
		cel.Variable("method", cel.StringType),
		cel.Variable("scheme", cel.StringType),
		cel.Variable("host", cel.StringType),
		cel.Variable("taskNet", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	return &Gate{devWriteDesktop: devWriteDesktop, env: env, rules: map[string]cel.Program{}}, nil
}

// CheckHTTPMethod enforces the method allowlist for api.call http(s)://.
func (g *Gate) CheckHTTPMethod(method string) Decision {
	m := strings.ToUpper(method)
	if allowedHTTPMethods[m] {
		return Decision{Granted: true}
	}
	return Decision{Granted: false, Reason: fmt.Sprintf("Method %s not allowed", m)}
}

// CheckFSWrite enforces base-directory and traversal rules for
// tauri://fs/writeTextFile.
func (g *Gate) CheckFSWrite(baseDir BaseDir, path string) Decision {
	if strings.Contains(path, "..") {
		return Decision{Granted: false, Reason: "path traversal rejected"}
	}
	if !knownBaseDirs[baseDir] {
		return Decision{Granted: false, Reason: fmt.Sprintf("unknown base directory %q", baseDir)}
	}
	if baseDir == BaseDirDesktop && !g.devWriteDesktop {
		return Decision{Granted: false, Reason: "Desktop writes require the dev-write flag"}
	}
	return Decision{Granted: true}
}

// CheckComputeNet enforces that a job's requested net hosts are a
// subset of the task profile's allowed hosts.
func (g *Gate) CheckComputeNet(requested, profileAllowed []string) Decision {
	allowed := make(map[string]bool, len(profileAllowed))
	for _, h := range profileAllowed {
		allowed[h] = true
	}
	for _, h := range requested {
		if !allowed[h] {
			return Decision{Granted: false, Reason: fmt.Sprintf("net host %q not in task profile", h)}
		}
	}
	return Decision{Granted: true}
}

// Check evaluates the CEL rule expr (cached under name) against vars,
// returning a granted/denied Decision. Used for operator-authored
// policy rules beyond the built-in checks above.
func (g *Gate) Check(ctx context.Context, name, expr string, vars map[string]interface{}) (Decision, error) {
	prog, err := g.compile(name, expr)
	if err != nil {
		return Decision{}, err
	}
	out, _, err := prog.ContextEval(ctx, vars)
	if err != nil {
		return Decision{}, fmt.Errorf("policy: eval %s: %w", name, err)
	}
	granted, ok := out.Value().(bool)
	if !ok {
		return Decision{}, fmt.Errorf("policy: rule %s did not evaluate to bool", name)
	}
	if !granted {
		return Decision{Granted: false, Reason: fmt.Sprintf("denied by rule %s", name)}, nil
	}
	return Decision{Granted: true}, nil
}

func (g *Gate) compile(name, expr string) (cel.Program, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prog, ok := g.rules[name]; ok {
		return prog, nil
	}
	ast, iss := g.env.Compile(expr)
	if iss.Err() != nil {
		return nil, fmt.Errorf("policy: compile %s: %w", name, iss.Err())
	}
	prog, err := g.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("policy: program %s: %w", name, err)
	}
	g.rules[name] = prog
	return prog, nil
}

package services

import (
	"context"
	"fmt"
	"regexp"

	"roboctl/internal/artifact"
	"roboctl/internal/descriptor"
)

// LaunchRequest is everything a service receives when it is started.
type LaunchRequest struct {
	RunID      string
	Descriptor descriptor.Descriptor
	// Artifacts are shared with every other consumer of the run; read only.
	Artifacts map[artifact.Name]artifact.Artifact
	// Params are the service's own parameters from its descriptor.
	Params map[string]interface{}
	// Variant identifies the active configuration variant (ROB_PARAM,
	// EE_PARAM, ENV_PARAM). Every service of a run receives the same values.
	Variant    map[string]interface{}
	UseSimTime bool
}

// Name returns the service name.
func (r LaunchRequest) Name() string {
	return r.Descriptor.Name
}

// Process is a started service.
type Process interface {
	// PID identifies the process; in-process tasks use synthetic ids.
	PID() int
	// Wait blocks until the service exits and returns its exit status. An
	// error describes abnormal termination. Wait must be called once.
	Wait() (int, error)
	// Stop asks the service to terminate and returns once it has, or ctx is done.
	Stop(ctx context.Context) error
}

// Launcher starts services.
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (Process, error)
}

// ServiceStartError reports a launch call that failed. It degrades the run
// but does not hold back services gated on the failed service's exit.
type ServiceStartError struct {
	Service string
	Err     error
}

func (e *ServiceStartError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Service, e.Err)
}

func (e *ServiceStartError) Unwrap() error {
	return e.Err
}

var argRefPattern = regexp.MustCompile(`\$\((artifact|share)\s+([A-Za-z0-9_\-]+)\s*\)`)

// ExpandArgs replaces $(artifact NAME) and $(share PACKAGE) references in args.
func ExpandArgs(args []string, artifacts map[artifact.Name]artifact.Artifact, shareDir func(pkg string) string) ([]string, error) {
	out := make([]string, len(args))
	for i, a := range args {
		var expandErr error
		out[i] = argRefPattern.ReplaceAllStringFunc(a, func(ref string) string {
			m := argRefPattern.FindStringSubmatch(ref)
			switch m[1] {
			case "artifact":
				art, ok := artifacts[artifact.Name(m[2])]
				if !ok {
					expandErr = fmt.Errorf("argument %q references artifact %s which was not provided", a, m[2])
					return ref
				}
				if rv, ok := art.(*artifact.RvizDocument); ok {
					return rv.Path
				}
				return string(art.Document())
			default:
				if shareDir == nil {
					expandErr = fmt.Errorf("argument %q references package %s but no share directory is known", a, m[2])
					return ref
				}
				return shareDir(m[2])
			}
		})
		if expandErr != nil {
			return nil, expandErr
		}
	}
	return out, nil
}

// MergeParameters deep merges the parameters of the request: artifacts in
// descriptor order, then scalar parameters, then use_sim_time.
func MergeParameters(req LaunchRequest) map[string]interface{} {
	merged := map[string]interface{}{}
	for _, name := range req.Descriptor.Contract.Artifacts {
		if a, ok := req.Artifacts[name]; ok {
			mergeInto(merged, a.Parameters())
		}
	}
	mergeInto(merged, req.Params)
	if req.UseSimTime {
		merged["use_sim_time"] = true
	}
	return merged
}

func mergeInto(dst, src map[string]interface{}) {
	for k, v := range src {
		if sm, ok := v.(map[string]interface{}); ok {
			if dm, ok := dst[k].(map[string]interface{}); ok {
				mergeInto(dm, sm)
				continue
			}
			cp := map[string]interface{}{}
			mergeInto(cp, sm)
			dst[k] = cp
			continue
		}
		dst[k] = v
	}
}

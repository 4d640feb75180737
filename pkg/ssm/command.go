package ssm

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xlttj/ssmfwd/pkg/config"
)

// DocumentName is the SSM document that implements port forwarding.
const DocumentName = "AWS-StartPortForwardingSession"

// ConnectionSpec contains the parameters needed to start one session.
type ConnectionSpec struct {
	Target     string // Instance id passed to --target
	Profile    string // Value for the profile selector variable
	LocalPort  int
	RemotePort int
}

// SpecFromEntry builds the connection spec for an entry.
func SpecFromEntry(e config.Entry) ConnectionSpec {
	return ConnectionSpec{
		Target:     e.Identifier,
		Profile:    e.Env,
		LocalPort:  e.LocalPort,
		RemotePort: e.RemotePort,
	}
}

// Arguments returns the aws cli argv (without the executable) for spec.
func Arguments(spec ConnectionSpec) []string {
	return []string{
		"ssm",
		"start-session",
		"--target", spec.Target,
		"--document-name", DocumentName,
		"--parameters", parameters(spec),
	}
}

// parameters encodes the document parameters. SSM document parameters are
// string lists, so the ports are sent as strings.
func parameters(spec ConnectionSpec) string {
	params := map[string][]string{
		"portNumber":      {strconv.Itoa(spec.RemotePort)},
		"localPortNumber": {strconv.Itoa(spec.LocalPort)},
	}
	// Marshal sorts map keys, which keeps the output stable.
	data, _ := json.Marshal(params)
	return string(data)
}

// Environment returns base with binDir prepended to PATH and profileEnv set
// to profile. Existing values of both variables are replaced.
func Environment(base []string, binDir, profileEnv, profile string) []string {
	path := ""
	out := make([]string, 0, len(base)+2)
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "PATH":
			path = value
			continue
		case profileEnv:
			continue
		}
		out = append(out, kv)
	}
	if binDir != "" {
		if path == "" {
			path = binDir
		} else {
			path = binDir + string(os.PathListSeparator) + path
		}
	}
	if path != "" {
		out = append(out, "PATH="+path)
	}
	return append(out, profileEnv+"="+profile)
}

// ResolveExecutable prefers binDir for a bare executable name, so the
// binary is found the same way the session's own PATH finds its plugin.
// Anything else is returned unchanged for exec to resolve.
func ResolveExecutable(executable, binDir string) string {
	if binDir == "" || filepath.Base(executable) != executable {
		return executable
	}
	candidate := filepath.Join(binDir, executable)
	if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
		return candidate
	}
	return executable
}

// command builds the session process for spec. It is not started.
func (s *Supervisor) command(spec ConnectionSpec) *exec.Cmd {
	cmd := exec.Command(ResolveExecutable(s.opts.Executable, s.opts.BinDir), Arguments(spec)...)
	cmd.Env = Environment(s.opts.Environ(), s.opts.BinDir, s.opts.ProfileEnv, spec.Profile)
	return cmd
}

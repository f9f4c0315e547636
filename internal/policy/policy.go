// Package policy implements the daemon's command policy filter (spec §4.3):
// a syntactic allow/deny decision consulted before every exec. It is
// deliberately conservative and cannot see into shell expansion or
// subshells — it is defense-in-depth behind the output scrubber, never a
// substitute for it.
//
// Grounded in the teacher's internal/policy package name and structure
// (PolicyEnforcer-style validation with structured results), generalized
// from provider/complexity whitelisting to the spec's command-syntax rules.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

// blockedCommands is the set of first-token commands that are never
// allowed, regardless of arguments, because their entire purpose is to
// surface process environment state.
var blockedCommands = map[string]bool{
	"env":      true,
	"printenv": true,
	"export":   true,
	"set":      true,
	"xxd":      true,
	"hexdump":  true,
	"od":       true,
	"base64":   true,
	"history":  true,
}

// segmentSplit breaks a command into its pipeline/list segments so each
// piece can be checked for a blocked leading command independently of
// what precedes or follows it (e.g. "echo hi | env" must still block on
// its second segment).
var segmentSplit = regexp.MustCompile(`[;&|]+`)

// dumpOnly matches an echo/printf invocation whose entire argument list is
// one or more bare $VAR references and nothing else — the shape of a
// command whose sole purpose is dumping environment values. A command
// like "echo hello $NAME", which interpolates a variable into otherwise
// meaningful literal output, does not match and is left to the scrubber.
var dumpOnly = regexp.MustCompile(`(?i)^(echo|printf)(\s+-\S+)*(\s+\$\w+)+\s*$`)

// patterns catches command shapes that don't reduce to a single blocked
// first token but still have environment-exfiltration as their observable
// purpose. These run against the whole, unsplit command string.
var patterns = []*regexp.Regexp{
	// cat of /proc/<pid>/environ
	regexp.MustCompile(`(?i)\bcat\b[^|;&]*/proc/\d+/environ`),
	// a $VAR reference followed by a pipe or redirect
	regexp.MustCompile(`\$\w+\s*(\||>|>>)`),
	// redirection into /dev/tcp/...
	regexp.MustCompile(`(?i)/dev/tcp/`),
	// literal tokens occurring anywhere in the command
	regexp.MustCompile(`(?i)\b(export|printenv|compgen\s+-e|declare\s+-x)\b`),
}

// Result is the outcome of validating a command string.
type Result struct {
	Allowed bool
	Reason  string
}

// Validate decides whether command may be handed to the shell. Blocked
// commands carry a human-readable reason, formatted to match exactly what
// the daemon mirrors into a blocked exec's stderr and blockReason fields.
func Validate(command string) Result {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return Result{Allowed: true}
	}

	for _, segment := range segmentSplit.Split(trimmed, -1) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}

		if first := firstToken(segment); first != "" {
			base := baseName(first)
			if blockedCommands[base] {
				return Result{
					Allowed: false,
					Reason:  fmt.Sprintf("Command '%s' is blocked for security", base),
				}
			}
		}

		if dumpOnly.MatchString(segment) {
			return Result{
				Allowed: false,
				Reason:  "Command matches a blocked environment-exfiltration pattern",
			}
		}
	}

	for _, p := range patterns {
		if p.MatchString(trimmed) {
			return Result{
				Allowed: false,
				Reason:  "Command matches a blocked environment-exfiltration pattern",
			}
		}
	}

	return Result{Allowed: true}
}

// firstToken returns the first whitespace-delimited token of command.
func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// baseName strips any leading directory components from a token, the way
// filepath.Base would, but without attaching OS path semantics to what is
// really just a shell word (so "./env" and "/usr/bin/env" both reduce to
// "env").
func baseName(token string) string {
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		return token[idx+1:]
	}
	return token
}

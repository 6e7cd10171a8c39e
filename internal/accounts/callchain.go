package accounts

import (
	"runtime"
	"strings"
)

const moduleNamespace = "github.com/securemsg/accountdir"

const callChainDepth = 24

// abbreviatedCallChain renders the current stack as
// "Type:method -> Type:method", keeping only frames inside the project
// namespace and dropping the comparison plumbing. Depth is capped; raw
// stacks are never logged.
func abbreviatedCallChain() string {
	pcs := make([]uintptr, callChainDepth)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var parts []string
	for {
		frame, more := frames.Next()
		if strings.HasPrefix(frame.Function, moduleNamespace) && !isComparisonFrame(frame.Function) {
			parts = append(parts, abbreviateFrame(frame.Function))
		}
		if !more {
			break
		}
	}

	return strings.Join(parts, " -> ")
}

func isComparisonFrame(function string) bool {
	short := abbreviateFrame(function)
	_, method, ok := strings.Cut(short, ":")
	if !ok {
		return false
	}
	return strings.HasPrefix(method, "CompareAccounts") ||
		strings.HasPrefix(method, "compare") ||
		strings.HasPrefix(method, "recordComparison")
}

// abbreviateFrame shortens a fully qualified function name, e.g.
// ".../internal/accounts.(*AccountsManager).GetByUUID" becomes
// "AccountsManager:GetByUUID" and ".../internal/accounts.runShadow"
// becomes "accounts:runShadow".
func abbreviateFrame(function string) string {
	if i := strings.LastIndex(function, "/"); i >= 0 {
		function = function[i+1:]
	}

	pkg, rest, ok := strings.Cut(function, ".")
	if !ok {
		return function
	}

	if strings.HasPrefix(rest, "(*") || strings.HasPrefix(rest, "(") {
		rest = strings.TrimPrefix(rest, "(*")
		rest = strings.TrimPrefix(rest, "(")
		if receiver, method, found := strings.Cut(rest, ")."); found {
			return receiver + ":" + method
		}
	}

	return pkg + ":" + rest
}

package policy

import "strings"

// Keyword tables for classification. Checked in order of severity:
// dangerous beats delete beats write. Everything else reads.
var (
	dangerousFlags = []string{
		"--force", "--hard", "--no-preserve-root", "--cascade", "-rf", "-fr",
	}
	dangerousWords = []string{
		"sudo", "chmod", "chown", "mkfs", "shutdown", "reboot", "halt",
		"kill", "pkill", "killall", "dd", "truncate", "format",
		"drop database", "drop table", "force-push", "push --force",
	}
	deleteWords = []string{
		"rm", "rmdir", "delete", "del", "remove", "destroy", "purge",
		"prune", "drop", "unlink", "terminate", "uninstall",
	}
	writeWords = []string{
		"create", "apply", "deploy", "update", "edit", "write", "set",
		"add", "push", "merge", "commit", "scale", "restart", "rollout",
		"patch", "install", "upgrade", "migrate", "rename", "move", "mv",
		"cp", "copy", "tag", "release", "publish", "assign", "label",
		"close", "reopen", "approve", "rollback",
	}
)

// Classify maps command text to an action class. The analysis is
// stateless and purely lexical: elevated-privilege invocations, force
// flags, and destructive verbs are dangerous; removal verbs are delete;
// mutating verbs are write; everything else defaults to read.
func Classify(text string) ActionClass {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return ClassRead
	}

	for _, flag := range dangerousFlags {
		if containsWord(lower, flag) {
			return ClassDangerous
		}
	}
	for _, phrase := range dangerousWords {
		if containsWord(lower, phrase) {
			return ClassDangerous
		}
	}
	for _, w := range deleteWords {
		if containsWord(lower, w) {
			return ClassDelete
		}
	}
	for _, w := range writeWords {
		if containsWord(lower, w) {
			return ClassWrite
		}
	}
	return ClassRead
}

// containsWord reports whether phrase occurs in text on word
// boundaries, so "rm" matches "rm -rf /tmp" but not "alarm" or "form".
func containsWord(text, phrase string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], phrase)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(phrase)

		beforeOK := start == 0 || isBoundary(text[start-1])
		afterOK := end == len(text) || isBoundary(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
		if idx >= len(text) {
			return false
		}
	}
}

func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '/', ';', '|', '&', '(', ')', '"', '\'', '`', '.', ',', '=':
		return true
	}
	return false
}

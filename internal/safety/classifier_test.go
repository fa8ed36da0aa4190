package safety

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyBlocked(t *testing.T) {
	c := NewClassifier(true)

	blocked := []string{
		"rm -rf /",
		"rm -rf / --no-preserve-root",
		"rm -fr ~",
		"sudo rm -rf /*",
		"mkfs.ext4 /dev/sdb1",
		"mkfs /dev/sda",
		"dd if=/dev/zero of=/dev/sda bs=1M",
		"cat garbage > /dev/sda",
		":(){ :|:& };:",
	}
	for _, cmd := range blocked {
		assert.Equal(t, Blocked, c.Classify(cmd), "command: %s", cmd)
	}
}

func TestClassifyRequiresConfirmation(t *testing.T) {
	c := NewClassifier(true)

	confirm := []string{
		"rm -rf ./build",
		"rm -rf node_modules",
		"sudo rm /etc/hosts",
		"sudo chown root:root /usr/local/bin/tool",
		"chmod -R 777 .",
		"chown --recursive app:app /srv/data",
		"shutdown -h now",
		"reboot",
		"shred -u secrets.txt",
	}
	for _, cmd := range confirm {
		assert.Equal(t, RequiresConfirmation, c.Classify(cmd), "command: %s", cmd)
	}
}

func TestClassifyUnmatchedHonorsAutoRun(t *testing.T) {
	auto := NewClassifier(true)
	manual := NewClassifier(false)

	for _, cmd := range []string{"ls -la", "git status", "echo hello", "rm notes.txt"} {
		assert.Equal(t, Safe, auto.Classify(cmd), "command: %s", cmd)
		assert.Equal(t, RequiresConfirmation, manual.Classify(cmd), "command: %s", cmd)
	}
}

func TestClassifyOrderFirstMatchWins(t *testing.T) {
	// Matches both the root delete rule and the generic rm -rf rule; the
	// blocked rule is earlier in the list and must win.
	c := NewClassifier(true)
	assert.Equal(t, Blocked, c.Classify("rm -rf /"))
	assert.Equal(t, "recursive delete of root-like path", c.MatchedRule("rm -rf /"))
}

func TestClassifyIsPure(t *testing.T) {
	c := NewClassifier(false)
	first := c.Classify("sudo rm -rf /tmp/cache")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Classify("sudo rm -rf /tmp/cache"))
	}
}

func TestMatchedRuleEmptyForSafe(t *testing.T) {
	c := NewClassifier(true)
	assert.Equal(t, "", c.MatchedRule("ls"))
}

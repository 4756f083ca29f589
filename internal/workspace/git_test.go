package workspace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGitManagerTokenHandling(t *testing.T) {
	tests := map[string]struct {
		token       string
		cloneURL    string
		expAuthURL  string
		output      string
		expRedacted string
	}{
		"HTTPS URLs should get the token injected and redacted.": {
			token:       "s3cr3t",
			cloneURL:    "https://github.com/acme/web.git",
			expAuthURL:  "https://s3cr3t@github.com/acme/web.git",
			output:      "fatal: unable to access 'https://s3cr3t@github.com/acme/web.git/'",
			expRedacted: "fatal: unable to access 'https://***@github.com/acme/web.git/'",
		},

		"Non HTTPS URLs should not get the token.": {
			token:       "s3cr3t",
			cloneURL:    "/tmp/remote.git",
			expAuthURL:  "/tmp/remote.git",
			output:      "fatal: not a repository",
			expRedacted: "fatal: not a repository",
		},

		"Without token nothing should change.": {
			cloneURL:    "https://github.com/acme/web.git",
			expAuthURL:  "https://github.com/acme/web.git",
			output:      "https://github.com/acme/web.git",
			expRedacted: "https://github.com/acme/web.git",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			m := &GitManager{token: test.token}
			assert.Equal(t, test.expAuthURL, m.authURL(test.cloneURL))
			assert.Equal(t, test.expRedacted, m.redact(test.output))
		})
	}
}

func TestSubcommand(t *testing.T) {
	assert.Equal(t, "commit", subcommand([]string{"-c", "user.name=x", "-c", "user.email=y", "commit", "-m", "msg"}))
	assert.Equal(t, "push", subcommand([]string{"push", "origin", "main"}))
	assert.Equal(t, "", subcommand(nil))
}

func TestIsPushRejection(t *testing.T) {
	assert.True(t, isPushRejection(" ! [rejected]        main -> main (fetch first)"))
	assert.True(t, isPushRejection("hint: Updates were rejected because of a non-fast-forward"))
	assert.False(t, isPushRejection("fatal: could not read from remote repository"))
}

package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequired(t *testing.T) {
	t.Parallel()
	v := required(errPasswordRequired)

	assert.ErrorIs(t, v(""), errPasswordRequired)
	assert.ErrorIs(t, v("   "), errPasswordRequired)
	assert.NoError(t, v("s3cret"))
}

func TestCredentialsAlreadySet(t *testing.T) {
	t.Parallel()
	user, pass := "root", "pw"
	assert.NoError(t, Credentials(t.Context(), "Proxmox", &user, &pass))

	token := "abc"
	assert.NoError(t, Token(t.Context(), "Hetzner Cloud", &token))
}

func TestPromptWithoutTerminal(t *testing.T) {
	// go test runs with stdin detached from a terminal
	if IsInteractive() {
		t.Skip("running on a terminal")
	}
	user, pass := "root", ""
	assert.ErrorIs(t, Credentials(t.Context(), "Proxmox", &user, &pass), ErrNotInteractive)

	var token string
	assert.ErrorIs(t, Token(t.Context(), "Hetzner Cloud", &token), ErrNotInteractive)
}

package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginPassURLPatterns(t *testing.T) {
	html := `<html><body>
		<a href="/wp-login.php">Staff</a>
		<a href="/about">About</a>
		<a href="https://example.com/manager/console">Console</a>
		<a href="/wp-login.php">Staff again</a>
	</body></html>`
	page := pageWith(html)

	report := loginPass(parseDocument(html), page)

	assert.Equal(t, []string{
		"https://example.com/wp-login.php",
		"https://example.com/manager/console",
	}, report.CandidateURLs)
	assert.True(t, report.IsAdminLike)
}

func TestLoginPassKeywords(t *testing.T) {
	html := `<html><head><title>Admin Dashboard</title></head><body>
		<h1>Login</h1>
		<h2>Login</h2>
		<h3>Welcome</h3>
	</body></html>`
	page := pageWith(html)

	report := loginPass(parseDocument(html), page)

	assert.Equal(t, []string{"Admin", "Dashboard", "Login"}, report.KeywordsFound)
	assert.True(t, report.IsAdminLike)
	assert.Empty(t, report.CandidateURLs)
}

func TestLoginPassFormHeuristics(t *testing.T) {
	html := `<html><body>
		<form action="/account/auth" method="post">
			<input type="text" name="username">
			<input type="password" name="pw">
		</form>
	</body></html>`
	page := pageWith(html)

	report := loginPass(parseDocument(html), page)

	assert.Equal(t, []string{"https://example.com/account/auth"}, report.CandidateURLs)
	assert.True(t, report.IsAdminLike)
}

func TestLoginPassFormWithoutActionTargetsPage(t *testing.T) {
	html := `<html><body>
		<form method="post">
			<input type="email" name="contact">
			<input type="password" name="secretword">
		</form>
	</body></html>`
	page := pageWith(html)

	report := loginPass(parseDocument(html), page)

	assert.Equal(t, []string{"https://example.com/"}, report.CandidateURLs)
}

func TestLoginPassNoSignals(t *testing.T) {
	html := `<html><head><title>Recipes</title></head><body>
		<h1>Best pasta</h1>
		<a href="/recipes/42">Carbonara</a>
		<form action="/search"><input type="text" name="q"></form>
	</body></html>`
	page := pageWith(html)

	report := loginPass(parseDocument(html), page)

	assert.False(t, report.IsAdminLike)
	assert.Empty(t, report.CandidateURLs)
	assert.Empty(t, report.KeywordsFound)
}

func TestIsLoginForm(t *testing.T) {
	tests := []struct {
		name     string
		form     string
		expected bool
	}{
		{
			name:     "password type with user name",
			form:     `<form><input type="text" name="user"><input type="password" name="p"></form>`,
			expected: true,
		},
		{
			name:     "pwd name with email type",
			form:     `<form><input type="email" name="contact"><input type="text" name="pwd"></form>`,
			expected: true,
		},
		{
			name:     "uname and pass names without types",
			form:     `<form><input name="uname"><input name="pass"></form>`,
			expected: true,
		},
		{
			name:     "password alone is not enough",
			form:     `<form><input type="password" name="p"></form>`,
			expected: false,
		},
		{
			name:     "search form",
			form:     `<form><input type="text" name="q"></form>`,
			expected: false,
		},
		{
			name:     "newsletter signup without password",
			form:     `<form><input type="email" name="email"></form>`,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parseDocument(tt.form)
			form := doc.Find("form").First()
			require.Equal(t, 1, form.Length())
			assert.Equal(t, tt.expected, isLoginForm(form))
		})
	}
}

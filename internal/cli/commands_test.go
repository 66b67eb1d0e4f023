package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/cheerfeed/internal/config"
)

const testConfig = `global:
  data_dir: %DATA%
storage:
  backend: file
llm:
  backend: static
logging:
  level: error
timeline:
  reveal_cap: 2
  reveal_min: 1ms
  reveal_max: 2ms
  quote_delay_min: %QUOTE%
  quote_delay_max: %QUOTE%
quota:
  daily_limit: 3
`

type cliEnv struct {
	t       *testing.T
	config  string
	context string
}

// newCLIEnv keeps quote-repost attempts out of the way unless a test
// asks for them with newCLIEnvQuoting.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return newCLIEnvWith(t, "1h")
}

func newCLIEnvQuoting(t *testing.T) *cliEnv {
	t.Helper()
	return newCLIEnvWith(t, "1ms")
}

func newCLIEnvWith(t *testing.T, quoteDelay string) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))

	cfgPath := filepath.Join(dir, "config.yaml")
	body := strings.NewReplacer("%DATA%", filepath.Join(dir, "data"), "%QUOTE%", quoteDelay).Replace(testConfig)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	return &cliEnv{t: t, config: cfgPath, context: filepath.Join(dir, "context.yaml")}
}

// run executes one CLI invocation, like a fresh process would.
func (e *cliEnv) run(args ...string) (string, error) {
	e.t.Helper()
	rt := newRuntime()
	defer rt.close()

	cmd := rt.rootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.config, "--context-file", e.context}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func (e *cliEnv) mustRun(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "cheerfeed %s\n%s", strings.Join(args, " "), out)
	return out
}

func (e *cliEnv) storedContext() *config.Context {
	e.t.Helper()
	ctx, err := config.NewContextStore(e.context).Load()
	require.NoError(e.t, err)
	return ctx
}

func TestRootCommandsRegistered(t *testing.T) {
	root := newRootCmd("test")
	for _, name := range []string{"serve", "post", "more", "reply", "qreply", "timeline", "quota", "name", "events", "config", "context"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}
}

func TestPostAndTimeline(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("post", "shipped", "the", "thing")
	require.Contains(t, out, "shipped the thing")
	require.Contains(t, out, "Next steps:")

	stored := env.storedContext()
	require.True(t, stored.HasPost())

	out = env.mustRun("--json", "timeline")
	var result struct {
		Items []map[string]any `json:"items"`
		Page  struct {
			Total int `json:"total"`
		} `json:"page"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, 1, result.Page.Total)
	require.Equal(t, stored.PostID, result.Items[0]["id"])
	require.Equal(t, "shipped the thing", result.Items[0]["text"])
}

func TestPostWaitRevealsEverything(t *testing.T) {
	env := newCLIEnvQuoting(t)

	out := env.mustRun("--json", "post", "--wait", "long day")
	var result struct {
		Post struct {
			ID         string           `json:"id"`
			Replies    []map[string]any `json:"replies"`
			AllReplies []map[string]any `json:"allReplies"`
		} `json:"post"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.NotEmpty(t, result.Post.ID)
	require.NotEmpty(t, result.Post.Replies)
	require.Len(t, result.Post.Replies, len(result.Post.AllReplies))
}

func TestMoreUsesRememberedPost(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("post", "first")

	out := env.mustRun("--json", "more")
	var result struct {
		Post struct {
			ID string `json:"id"`
		} `json:"post"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, env.storedContext().PostID, result.Post.ID)
}

func TestMoreWithoutContextIsUsageError(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("more")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, ExitCodeUsage, exitErr.Code)
}

func TestReplyToReply(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun("--json", "post", "hello")

	var created struct {
		Post struct {
			ID      string `json:"id"`
			Replies []struct {
				ID string `json:"id"`
			} `json:"replies"`
		} `json:"post"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	require.NotEmpty(t, created.Post.Replies)

	out = env.mustRun("--json", "reply", created.Post.ID[:8], created.Post.Replies[0].ID, "thank", "you")
	var replied replyResult
	require.NoError(t, json.Unmarshal([]byte(out), &replied))
	require.Equal(t, created.Post.ID, replied.ItemID)
	require.Equal(t, created.Post.Replies[0].ID, replied.Reply.ID)
	require.Len(t, replied.Reply.Children, 2)
	require.Equal(t, "thank you", replied.Reply.Children[0].Text)
	require.Equal(t, replied.Reply.User.Name, replied.Reply.Children[1].User.Name)
}

func TestEmptyPostIsUsageError(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("post", "   ")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, ExitCodeUsage, exitErr.Code)
}

func TestQuotaCountsPosts(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("post", "one")
	env.mustRun("post", "two")

	out := env.mustRun("--json", "quota")
	var status struct {
		DailyCount int `json:"dailyCount"`
		DailyLimit int `json:"dailyLimit"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	require.Equal(t, 2, status.DailyCount)
	require.Equal(t, 3, status.DailyLimit)

	out = env.mustRun("quota")
	require.Contains(t, out, "2 / 3")
}

func TestNameCommand(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun("name", "Sam")
	require.Contains(t, out, "Sam")

	out = env.mustRun("name")
	require.Contains(t, out, "Sam")

	_, err := env.run("name", " ")
	require.Error(t, err)
}

func TestEventsRequiresSQLite(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("events")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.Equal(t, ExitCodeUsage, exitErr.Code)
}

func TestContextCommands(t *testing.T) {
	env := newCLIEnv(t)
	require.Contains(t, env.mustRun("context"), "(no context set)")

	env.mustRun("post", "remember me")
	require.Contains(t, env.mustRun("context"), "remember me")

	env.mustRun("context", "clear")
	require.True(t, env.storedContext().IsEmpty())
}

func TestConfigShowHidesKey(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("GEMINI_API_KEY", "secret-value")

	out := env.mustRun("config", "show")
	require.Contains(t, out, "api_key_set: true")
	require.Contains(t, out, "backend: static")
	require.NotContains(t, out, "secret-value")

	out = env.mustRun("config", "path")
	require.Contains(t, out, "cheerfeed.json")
}

func TestJSONAndYAMLAreExclusive(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run("--json", "--yaml", "timeline")
	require.Error(t, err)
}

func TestTimelineYAML(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun("post", "yaml please")

	out := env.mustRun("--yaml", "timeline")
	require.Contains(t, out, "text: yaml please")
	require.Contains(t, out, "total: 1")
}

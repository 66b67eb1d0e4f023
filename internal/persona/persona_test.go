package persona

import (
	"encoding/base64"
	"math/rand/v2"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/cheerfeed/internal/models"
)

var handlePattern = regexp.MustCompile(`^@[a-z0-9](?:[a-z0-9_]*[a-z0-9])?$`)

func newTestMinter(seed uint64) *Minter {
	return NewMinter(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15), WithIDFunc(func() string { return "fixed" }))
}

func TestHandleReservedNames(t *testing.T) {
	m := newTestMinter(1)
	require.Equal(t, "@tadasumen", m.Handle("ただすめん"))
	require.Equal(t, "@kenta_b", m.Handle("ケンタ兄さん"))
}

func TestHandleShape(t *testing.T) {
	m := newTestMinter(42)
	names := []string{
		"Sunny Day",
		"ＦＵＬＬ　ｗｉｄｔｈ１２",
		"ひまわり",
		"a",
		"__x__",
		"A very very long display name indeed",
		"",
	}
	for i := 0; i < 200; i++ {
		for _, name := range names {
			h := m.Handle(name)
			require.True(t, strings.HasPrefix(h, "@"), h)
			require.LessOrEqual(t, len(h), 21, h)
			require.Regexp(t, handlePattern, h)
			require.NotContains(t, h, "__", h)
		}
	}
}

func TestHandleUsesDerivedBaseSometimes(t *testing.T) {
	m := newTestMinter(7)
	sawDerived := false
	for i := 0; i < 200 && !sawDerived; i++ {
		h := m.Handle("Ｓｕｎｎｙ Day")
		sawDerived = strings.HasPrefix(h, "@sunny_day")
	}
	require.True(t, sawDerived, "fullwidth name should fold into a derived handle")
}

func TestHandleDeterministicForSeed(t *testing.T) {
	a := newTestMinter(99)
	b := newTestMinter(99)
	for i := 0; i < 20; i++ {
		require.Equal(t, a.Handle("Cheer Bot"), b.Handle("Cheer Bot"))
	}
}

func TestSilhouetteAvatar(t *testing.T) {
	url := SilhouetteAvatar("#93c5fd")
	require.True(t, strings.HasPrefix(url, "data:image/svg+xml;base64,"))

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/svg+xml;base64,"))
	require.NoError(t, err)
	require.Contains(t, string(raw), `fill="#93c5fd"`)
	require.Contains(t, string(raw), `fill="#FFFFFF"`)
}

func TestRandomAvatarMix(t *testing.T) {
	m := newTestMinter(3)
	silhouettes, photos := 0, 0
	for i := 0; i < 500; i++ {
		avatar := m.RandomAvatar("seed")
		switch {
		case strings.HasPrefix(avatar, "data:image/svg+xml"):
			silhouettes++
		case avatar == "https://picsum.photos/seed/seed/48/48":
			photos++
		default:
			t.Fatalf("unexpected avatar %q", avatar)
		}
	}
	require.Greater(t, silhouettes, 100)
	require.Greater(t, photos, 200)
}

func TestReplyPersona(t *testing.T) {
	m := newTestMinter(5)

	p := m.ReplyPersona("post-1", 3, "Sunny", "you got this")
	require.Equal(t, "ai-user-post-1-3-Sunny", p.ID)
	require.Equal(t, "Sunny", p.Name)
	require.Equal(t, "you got this", p.InitialReplyText)
	require.Regexp(t, handlePattern, p.Username)
	require.False(t, p.IsMainUser())

	reservedPersona := m.ReplyPersona("post-1", 0, "ただすめん", "hi")
	require.Equal(t, "@tadasumen", reservedPersona.Username)
	require.Equal(t, SilhouetteAvatar("#ffedd5"), reservedPersona.AvatarURL)
}

func TestQuotePersona(t *testing.T) {
	m := newTestMinter(5)

	p := m.QuotePersona("post-9", "ケンタ兄さん")
	require.Equal(t, "ai-quote-user-post-9-fixed", p.ID)
	require.Equal(t, "@kenta_b", p.Username)
	require.Equal(t, SilhouetteAvatar("#fecdd3"), p.AvatarURL)
	require.Empty(t, p.InitialReplyText)
}

func TestMainUser(t *testing.T) {
	u := MainUser("Mika")
	require.Equal(t, models.MainUserID, u.ID)
	require.Equal(t, models.MainUserHandle, u.Username)
	require.Equal(t, SilhouetteAvatar(MainUserAvatarColor), u.AvatarURL)
	require.True(t, IsReserved("ただすめん"))
	require.False(t, IsReserved("Mika"))
}

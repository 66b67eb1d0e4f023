// Package persona mints the ephemeral identities that author AI replies
// and quote-reposts, and builds their avatars.
package persona

import (
	"encoding/base64"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/tOgg1/cheerfeed/internal/models"
)

// MainUserAvatarColor is the silhouette background of the human user.
const MainUserAvatarColor = "#93c5fd"

// SilhouetteChance is the probability that an AI persona gets a
// silhouette avatar instead of a photo.
const SilhouetteChance = 0.4

// SilhouetteColors is the palette for AI silhouette avatars.
var SilhouetteColors = []string{
	"#a7f3d0",
	"#fed7aa",
	"#d8b4fe",
	"#e5e7eb",
	"#fecaca",
	"#bfdbfe",
	"#fef08a",
	"#bae6fd",
}

const silhouetteSVG = `<svg width="48" height="48" viewBox="0 0 48 48" fill="none" xmlns="http://www.w3.org/2000/svg">` +
	`<rect width="48" height="48" rx="24" fill="%s"/>` +
	`<path fill-rule="evenodd" clip-rule="evenodd" d="M24 12C20.6863 12 18 14.6863 18 18C18 21.3137 20.6863 24 24 24C27.3137 24 30 21.3137 30 18C30 14.6863 27.3137 12 24 12ZM16 30C16 26.6863 18.6863 24 22 24H26C29.3137 24 32 26.6863 32 30V34H16V30Z" fill="%s"/>` +
	`</svg>`

// SilhouetteAvatar renders a generic person silhouette on the given
// background as a base64 SVG data URL.
func SilhouetteAvatar(background string) string {
	svg := fmt.Sprintf(silhouetteSVG, background, "#FFFFFF")
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}

// PhotoAvatar returns a stable placeholder photo URL for a seed.
func PhotoAvatar(seed string) string {
	return "https://picsum.photos/seed/" + url.PathEscape(seed) + "/48/48"
}

// MainUser builds the human user's profile for a display name.
func MainUser(name string) models.UserProfile {
	return models.UserProfile{
		ID:        models.MainUserID,
		Name:      name,
		Username:  models.MainUserHandle,
		AvatarURL: SilhouetteAvatar(MainUserAvatarColor),
	}
}

// Minter creates AI personas. It is safe for concurrent use.
type Minter struct {
	mu    sync.Mutex
	rng   *rand.Rand
	newID func() string
}

// Option configures a Minter.
type Option func(*Minter)

// WithIDFunc overrides the random id source used for quote personas.
func WithIDFunc(fn func() string) Option {
	return func(m *Minter) {
		m.newID = fn
	}
}

// NewMinter creates a Minter drawing randomness from src. A nil src seeds
// from the runtime's random source.
func NewMinter(src rand.Source, opts ...Option) *Minter {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	m := &Minter{
		rng:   rand.New(src),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RandomAvatar picks a silhouette or a seeded photo avatar.
func (m *Minter) RandomAvatar(seed string) string {
	m.mu.Lock()
	silhouette := m.rng.Float64() < SilhouetteChance
	color := SilhouetteColors[m.rng.IntN(len(SilhouetteColors))]
	m.mu.Unlock()

	if silhouette {
		return SilhouetteAvatar(color)
	}
	return PhotoAvatar(seed)
}

// avatarFor returns the avatar of a persona, honouring reserved colors.
func (m *Minter) avatarFor(name, handle, seedSuffix string) string {
	if r, ok := reserved[name]; ok {
		return SilhouetteAvatar(r.color)
	}
	return m.RandomAvatar(url.QueryEscape(handle) + "_" + seedSuffix)
}

// ReplyPersona mints the author of the index-th generated reply on an item.
func (m *Minter) ReplyPersona(itemID string, index int, name, text string) models.UserProfile {
	handle := m.Handle(name)
	suffix := strconv.Itoa(index)
	return models.UserProfile{
		ID:               fmt.Sprintf("ai-user-%s-%s-%s", itemID, suffix, name),
		Name:             name,
		Username:         handle,
		AvatarURL:        m.avatarFor(name, handle, itemID+"_"+suffix),
		InitialReplyText: text,
	}
}

// QuotePersona mints the author of a quote-repost of a post.
func (m *Minter) QuotePersona(postID, name string) models.UserProfile {
	handle := m.Handle(name)
	return models.UserProfile{
		ID:        fmt.Sprintf("ai-quote-user-%s-%s", postID, m.newID()),
		Name:      name,
		Username:  handle,
		AvatarURL: m.avatarFor(name, handle, postID+"_quote"),
	}
}

// IsReserved reports whether name is one of the fixed personas.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

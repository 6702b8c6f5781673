package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hashicorp/go-retryablehttp"

	"skidoodle/biolink/internal/badges"
)

const (
	// DefaultAPIBaseURL is the REST API root.
	DefaultAPIBaseURL = "https://discord.com/api/v10"
	// DefaultCDNBaseURL serves avatars and banners.
	DefaultCDNBaseURL = "https://cdn.discordapp.com"

	defaultProfileTTL = 5 * time.Minute
	imageSize         = 512
)

var (
	// ErrProfileNotConfigured is returned when no bot token or user id is set.
	ErrProfileNotConfigured = errors.New("discord profile not configured")
	// ErrProfileUpstream wraps non-2xx responses and undecodable bodies.
	ErrProfileUpstream = errors.New("discord profile upstream error")
)

// Profile is the public view of the tracked user.
type Profile struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	GlobalName    string   `json:"globalName,omitempty"`
	Discriminator string   `json:"discriminator"`
	Avatar        string   `json:"avatar"`
	Banner        string   `json:"banner,omitempty"`
	AccentColor   *int     `json:"accentColor"`
	Badges        []string `json:"badges"`
	PremiumType   int      `json:"premiumType"`
	PublicFlags   uint64   `json:"publicFlags"`
}

type userData struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	GlobalName    *string `json:"global_name"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
	Banner        *string `json:"banner"`
	AccentColor   *int    `json:"accent_color"`
	PremiumType   int     `json:"premium_type"`
	PublicFlags   uint64  `json:"public_flags"`
}

// ProfileClient fetches the tracked user's profile over REST and caches it.
type ProfileClient struct {
	token  string
	userID string
	apiURL string
	cdnURL string
	ttl    time.Duration
	now    func() time.Time
	http   *retryablehttp.Client

	mu        sync.Mutex
	cached    *Profile
	fetchedAt time.Time
}

// ProfileOption configures a ProfileClient.
type ProfileOption func(*ProfileClient)

// WithProfileAPIURL overrides the REST API root.
func WithProfileAPIURL(u string) ProfileOption {
	return func(c *ProfileClient) { c.apiURL = strings.TrimRight(u, "/") }
}

// WithProfileTTL sets how long a fetched profile is served from cache.
func WithProfileTTL(ttl time.Duration) ProfileOption {
	return func(c *ProfileClient) { c.ttl = ttl }
}

// WithProfileClock injects the clock used for cache expiry.
func WithProfileClock(now func() time.Time) ProfileOption {
	return func(c *ProfileClient) { c.now = now }
}

// NewProfileClient creates a REST profile client.
func NewProfileClient(token, userID string, opts ...ProfileOption) *ProfileClient {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.RetryWaitMin = 200 * time.Millisecond
	hc.RetryWaitMax = 2 * time.Second
	hc.HTTPClient.Timeout = 10 * time.Second
	hc.Logger = nil

	c := &ProfileClient{
		token:  token,
		userID: userID,
		apiURL: DefaultAPIBaseURL,
		cdnURL: DefaultCDNBaseURL,
		ttl:    defaultProfileTTL,
		now:    time.Now,
		http:   hc,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile returns the cached profile, refreshing it once the TTL has passed.
// A failed refresh falls back to a stale cached profile when one exists.
func (c *ProfileClient) Profile(ctx context.Context) (*Profile, error) {
	if c.token == "" || c.userID == "" {
		return nil, ErrProfileNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.cached, nil
	}

	p, err := c.fetch(ctx)
	if err != nil {
		if c.cached != nil {
			return c.cached, nil
		}
		return nil, err
	}
	c.cached = p
	c.fetchedAt = c.now()
	return p, nil
}

func (c *ProfileClient) fetch(ctx context.Context) (*Profile, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/users/"+c.userID, nil)
	if err != nil {
		return nil, fmt.Errorf("building profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProfileUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrProfileUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrProfileUpstream, resp.StatusCode)
	}

	var u userData
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("%w: decoding user: %v", ErrProfileUpstream, err)
	}
	return c.toProfile(u), nil
}

func (c *ProfileClient) toProfile(u userData) *Profile {
	p := &Profile{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		AccentColor:   u.AccentColor,
		PremiumType:   u.PremiumType,
		PublicFlags:   u.PublicFlags,
		Badges:        badges.Decode(u.PublicFlags, u.PremiumType),
	}
	if u.GlobalName != nil {
		p.GlobalName = *u.GlobalName
	}
	var avatarHash, bannerHash string
	if u.Avatar != nil {
		avatarHash = *u.Avatar
	}
	if u.Banner != nil {
		bannerHash = *u.Banner
	}
	p.Avatar = AvatarURL(c.cdnURL, u.ID, u.Discriminator, avatarHash)
	p.Banner = BannerURL(c.cdnURL, u.ID, bannerHash)
	return p
}

// AvatarURL builds the CDN URL for a user avatar. Animated hashes use gif;
// a missing hash falls back to the default avatar for the account.
func AvatarURL(cdn, userID, discriminator, hash string) string {
	if hash == "" {
		return fmt.Sprintf("%s/embed/avatars/%d.png", cdn, defaultAvatarIndex(userID, discriminator))
	}
	return fmt.Sprintf("%s/avatars/%s/%s.%s?size=%d", cdn, userID, hash, imageExt(hash), imageSize)
}

// BannerURL builds the CDN URL for a profile banner, or "" without one.
func BannerURL(cdn, userID, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("%s/banners/%s/%s.%s?size=%d", cdn, userID, hash, imageExt(hash), imageSize)
}

func imageExt(hash string) string {
	if strings.HasPrefix(hash, "a_") {
		return "gif"
	}
	return "png"
}

// defaultAvatarIndex follows the migrated username rules: legacy accounts
// with a discriminator use it mod 5, others use (id >> 22) mod 6.
func defaultAvatarIndex(userID, discriminator string) uint64 {
	if discriminator != "" && discriminator != "0" {
		if d, err := strconv.ParseUint(discriminator, 10, 64); err == nil {
			return d % 5
		}
	}
	id, err := strconv.ParseUint(userID, 10, 64)
	if err != nil {
		return 0
	}
	return (id >> 22) % 6
}

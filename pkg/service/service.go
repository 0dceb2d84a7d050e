// Package service orchestrates user resolution and story/post fetching
// against the upstream API.
package service

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"igvault/pkg/config"
	"igvault/pkg/errors"
	"igvault/pkg/instagram"
	"igvault/pkg/logger"
	"igvault/pkg/media"
	"igvault/pkg/ratelimit"
	"igvault/pkg/retry"
	"igvault/pkg/store"
)

// Profile page scrape fallbacks, used when the search endpoint does
// not return the account.
var (
	profilePageIDPattern = regexp.MustCompile(`"profilePage_(\d+)"`)
	userIDPattern        = regexp.MustCompile(`"user_id":"(\d+)"`)
	profilePicPattern    = regexp.MustCompile(`"profile_pic_url":"([^"]+)"`)
)

// Service fetches stories and posts for public accounts.
type Service struct {
	client  *instagram.Client
	limiter ratelimit.Limiter
	results *store.Store
	cfg     *config.Config
	logger  logger.Logger
}

// New creates a fetch service. The result store is optional; pass nil
// to disable result persistence.
func New(client *instagram.Client, limiter ratelimit.Limiter, results *store.Store, cfg *config.Config, log logger.Logger) *Service {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Service{
		client:  client,
		limiter: limiter,
		results: results,
		cfg:     cfg,
		logger:  log,
	}
}

// ResolveUser maps a username to its profile and numeric user ID. The
// search endpoint is tried first; when it does not return the account,
// the public profile page HTML is scraped as a fallback.
func (s *Service) ResolveUser(ctx context.Context, username string) (*media.Profile, error) {
	username = instagram.SanitizeUsername(username)
	if !instagram.IsValidUsername(username) {
		return nil, errors.Newf(errors.KindValidation, "invalid username: %q", username)
	}

	if err := s.waitForSlot(ctx); err != nil {
		return nil, err
	}

	profile, err := s.resolveViaSearch(ctx, username)
	if err == nil && profile != nil {
		return profile, nil
	}
	if err != nil {
		kind := errors.KindOf(err)
		if kind == errors.KindAuth || kind == errors.KindRateLimit {
			return nil, err
		}
		s.logger.WarnWithFields("search lookup failed, trying profile page", map[string]interface{}{
			"username": username,
			"error":    err.Error(),
		})
	}

	profile, err = s.resolveViaProfilePage(ctx, username)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

func (s *Service) resolveViaSearch(ctx context.Context, username string) (*media.Profile, error) {
	resp, err := s.client.SearchUsers(ctx, username)
	if err != nil {
		return nil, err
	}

	for _, entry := range resp.Users {
		if strings.EqualFold(entry.User.Username, username) {
			profile := media.ProfileFromSearch(entry.User)
			return &profile, nil
		}
	}

	return nil, nil
}

func (s *Service) resolveViaProfilePage(ctx context.Context, username string) (*media.Profile, error) {
	body, err := s.client.FetchProfilePage(ctx, username)
	if err != nil {
		if errors.KindOf(err) == errors.KindNotFound {
			return nil, errors.Newf(errors.KindNotFound, "user %q not found", username)
		}
		return nil, err
	}

	html := string(body)

	var userID string
	if m := profilePageIDPattern.FindStringSubmatch(html); m != nil {
		userID = m[1]
	} else if m := userIDPattern.FindStringSubmatch(html); m != nil {
		userID = m[1]
	}

	if userID == "" {
		return nil, errors.Newf(errors.KindNotFound, "user %q not found", username)
	}

	profile := &media.Profile{
		UserID:   userID,
		Username: username,
	}

	if m := profilePicPattern.FindStringSubmatch(html); m != nil {
		profile.ProfilePicURL = unescapeJSONString(m[1])
	}

	return profile, nil
}

// GetStories returns the active story items for a username. An
// account with no active stories yields an empty slice, not an error.
func (s *Service) GetStories(ctx context.Context, username string) (*media.Profile, []media.Item, error) {
	profile, err := s.ResolveUser(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	if profile.IsPrivate {
		return nil, nil, errors.Newf(errors.KindNotFound, "%q is a private account", profile.Username)
	}

	if err := s.waitForSlot(ctx); err != nil {
		return nil, nil, err
	}

	resp, err := s.fetchReelsWithRetry(ctx, profile.UserID)
	if err != nil {
		return nil, nil, err
	}

	items := []media.Item{}
	if reel, ok := resp.Reels[profile.UserID]; ok {
		for _, ri := range reel.Items {
			if item, ok := media.FromReelItem(ri, profile.Username); ok {
				items = append(items, item)
			}
		}
	}

	s.enrichProfile(ctx, profile)

	s.logger.InfoWithFields("fetched stories", map[string]interface{}{
		"username": profile.Username,
		"items":    len(items),
	})

	s.persist(profile, items, store.KindStories)

	return profile, items, nil
}

// GetPosts returns up to count post items for a username, newest
// first. Carousel posts expand into one item per slide. count is
// clamped to the configured maximum.
func (s *Service) GetPosts(ctx context.Context, username string, count int) (*media.Profile, []media.Item, error) {
	if count <= 0 {
		count = s.cfg.Posts.DefaultCount
	}
	if count > s.cfg.Posts.MaxCount {
		count = s.cfg.Posts.MaxCount
	}

	profile, err := s.ResolveUser(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	if profile.IsPrivate {
		return nil, nil, errors.Newf(errors.KindNotFound, "%q is a private account", profile.Username)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Posts.FetchBudget)
	defer cancel()

	items := []media.Item{}
	maxID := ""
	page := 0

	for len(items) < count {
		if err := s.waitForSlot(ctx); err != nil {
			return nil, nil, err
		}

		resp, err := s.client.FetchUserFeed(ctx, profile.UserID, s.cfg.Posts.PageSize, maxID)
		if err != nil {
			// Keep what we already have if a later page fails
			if page > 0 {
				s.logger.WarnWithFields("feed page fetch failed, returning partial results", map[string]interface{}{
					"username": profile.Username,
					"page":     page,
					"error":    err.Error(),
				})
				break
			}
			return nil, nil, err
		}

		for _, fi := range resp.Items {
			items = append(items, media.FromFeedItem(fi, profile.Username)...)
		}

		page++
		if !resp.MoreAvailable || resp.NextMaxID == "" {
			break
		}
		maxID = resp.NextMaxID

		if len(items) >= count {
			break
		}

		// Pause between pages to stay under the radar
		if err := retry.Wait(ctx, s.cfg.Posts.PageDelay); err != nil {
			break
		}
	}

	if len(items) > count {
		items = items[:count]
	}

	s.enrichProfile(ctx, profile)

	s.logger.InfoWithFields("fetched posts", map[string]interface{}{
		"username": profile.Username,
		"items":    len(items),
		"pages":    page,
	})

	s.persist(profile, items, store.KindPosts)

	return profile, items, nil
}

// Results returns the stored result set for a username with its items
// sorted newest first. Callers window the items themselves.
func (s *Service) Results(username string) (*store.ResultSet, []media.Item, error) {
	if s.results == nil {
		return nil, nil, errors.New(errors.KindNotFound, "result store is disabled")
	}

	rs, err := s.results.Get(instagram.SanitizeUsername(username))
	if err != nil {
		return nil, nil, err
	}
	if rs == nil {
		return nil, nil, errors.Newf(errors.KindNotFound, "no results for %q", username)
	}

	items := rs.Items
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].TakenAt > items[j].TakenAt
	})

	return rs, items, nil
}

// Recent returns up to count stored result sets, most recent fetch
// first.
func (s *Service) Recent(count int) ([]*store.ResultSet, error) {
	if s.results == nil {
		return nil, errors.New(errors.KindNotFound, "result store is disabled")
	}
	return s.results.Latest(count)
}

// ForgetResults drops the stored result set for a username. Forgetting
// a username with no results is not an error.
func (s *Service) ForgetResults(username string) error {
	if s.results == nil {
		return errors.New(errors.KindNotFound, "result store is disabled")
	}
	return s.results.Delete(instagram.SanitizeUsername(username))
}

// fetchReelsWithRetry retries transient upstream failures on the story
// endpoint. Timeouts and not-found conditions surface immediately.
func (s *Service) fetchReelsWithRetry(ctx context.Context, userID string) (*instagram.ReelsMediaResponse, error) {
	cfg := retry.DefaultConfig()
	cfg.Context = ctx
	cfg.Logger = s.logger

	return retry.DoWithResult(func() (*instagram.ReelsMediaResponse, error) {
		return s.client.FetchReelsMedia(ctx, userID)
	}, cfg)
}

// enrichProfile fills in follower counts when the resolution path did
// not supply them. Failures are logged and ignored.
func (s *Service) enrichProfile(ctx context.Context, profile *media.Profile) {
	if profile.Followers > 0 || profile.UserID == "" {
		return
	}

	resp, err := s.client.FetchUserInfo(ctx, profile.UserID)
	if err != nil {
		s.logger.DebugWithFields("profile enrichment failed", map[string]interface{}{
			"username": profile.Username,
			"error":    err.Error(),
		})
		return
	}

	profile.Followers = resp.User.FollowerCount
	profile.MediaCount = resp.User.MediaCount
	if profile.FullName == "" {
		profile.FullName = resp.User.FullName
	}
	if profile.ProfilePicURL == "" {
		profile.ProfilePicURL = resp.User.ProfilePicURL
	}
}

func (s *Service) persist(profile *media.Profile, items []media.Item, kind string) {
	if s.results == nil {
		return
	}

	err := s.results.Put(&store.ResultSet{
		Username:  profile.Username,
		Kind:      kind,
		Profile:   *profile,
		Items:     items,
		FetchedAt: time.Now(),
	})
	if err != nil {
		s.logger.WithError(err).Warn("failed to persist result set")
	}
}

// waitForSlot blocks until the rate limiter grants a slot or the
// context is cancelled.
func (s *Service) waitForSlot(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return errors.Newf(errors.KindTimeout, "cancelled while waiting for rate limit: %v", err)
	}
	return nil
}

func unescapeJSONString(s string) string {
	s = strings.ReplaceAll(s, `&amp;`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return s
}

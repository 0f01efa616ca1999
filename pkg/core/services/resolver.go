package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/wadjakorntonsri/nfc-links/pkg/core/domain"
	"github.com/wadjakorntonsri/nfc-links/pkg/ports"
	"go.uber.org/zap"
)

// Fixed outbound parameters, always appended after tracking parameters.
const (
	ParamBizcode = "bizcode"
	ParamNFCUID  = "nfc_uid"
)

type ResolverConfig struct {
	DefaultURL     string
	TrackingParams []string
	LookupTimeout  time.Duration
	// IsSelfRedirect reports targets that point back at the scan endpoint.
	IsSelfRedirect func(target string) bool
}

type RedirectResolver struct {
	defaultURL    string
	allowed       map[string]struct{}
	lookupTimeout time.Duration
	isSelf        func(string) bool
	logger        *zap.Logger
}

func NewResolver(cfg ResolverConfig, logger *zap.Logger) *RedirectResolver {
	allowed := make(map[string]struct{}, len(cfg.TrackingParams))
	for _, p := range cfg.TrackingParams {
		p = strings.TrimSpace(p)
		if p == "" || p == ParamBizcode || p == ParamNFCUID {
			continue
		}
		allowed[p] = struct{}{}
	}
	isSelf := cfg.IsSelfRedirect
	if isSelf == nil {
		isSelf = func(string) bool { return false }
	}
	return &RedirectResolver{
		defaultURL:    cfg.DefaultURL,
		allowed:       allowed,
		lookupTimeout: cfg.LookupTimeout,
		isSelf:        isSelf,
		logger:        logger,
	}
}

// Resolve looks the identifier up through finder and builds the outbound URL.
// It returns domain.ErrTagNotFound for unknown, malformed, inactive, deleted or
// out-of-scope identifiers, and wraps everything else in
// domain.ErrStoreUnavailable.
func (r *RedirectResolver) Resolve(ctx context.Context, finder ports.TagFinder, uid string, rawQuery string) (*domain.ResolvedRedirect, error) {
	if !domain.ValidIdentifier(uid) {
		return nil, domain.ErrTagNotFound
	}

	lookupCtx := ctx
	if r.lookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.lookupTimeout)
		defer cancel()
	}

	tag, err := finder.FindByIdentifier(lookupCtx, uid)
	if err != nil {
		if errors.Is(err, domain.ErrTagNotFound) {
			return nil, domain.ErrTagNotFound
		}
		return nil, fmt.Errorf("%w: lookup %s: %w", domain.ErrStoreUnavailable, uid, err)
	}
	if tag == nil || !tag.Resolvable() {
		return nil, domain.ErrTagNotFound
	}

	base, kind := r.defaultURL, domain.RedirectDefault
	if tag.HasCustomTarget() {
		target := strings.TrimSpace(*tag.CustomTarget)
		switch {
		case !isWebURL(target):
			r.logger.Warn("custom target is not an http(s) URL, using default",
				zap.String("uid", tag.UID),
				zap.String("target", target),
			)
		case r.isSelf(target):
			r.logger.Warn("custom target points back at the scan endpoint, using default",
				zap.String("uid", tag.UID),
				zap.String("target", target),
			)
		default:
			base, kind = target, domain.RedirectCustom
		}
	}

	base = withoutFixedParams(base)
	params := r.trackingParams(rawQuery)
	params = append(params,
		queryParam{key: ParamBizcode, value: tag.Bizcode},
		queryParam{key: ParamNFCUID, value: uid},
	)

	return &domain.ResolvedRedirect{
		URL:     buildRedirectURL(base, params),
		BaseURL: base,
		Kind:    kind,
		Tag:     tag,
	}, nil
}

type queryParam struct {
	key   string
	value string
}

// trackingParams keeps allow-listed keys in the order the caller sent them.
// url.Values would lose that order, so the raw query is walked by hand.
func (r *RedirectResolver) trackingParams(rawQuery string) []queryParam {
	var out []queryParam
	seen := make(map[string]bool)
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			continue
		}
		if _, ok := r.allowed[key]; !ok || seen[key] {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil || strings.TrimSpace(value) == "" {
			continue
		}
		seen[key] = true
		out = append(out, queryParam{key: key, value: value})
	}
	return out
}

func buildRedirectURL(base string, params []queryParam) string {
	fragment := ""
	if i := strings.IndexByte(base, '#'); i >= 0 {
		base, fragment = base[:i], base[i:]
	}

	var q strings.Builder
	for i, p := range params {
		if i > 0 {
			q.WriteByte('&')
		}
		q.WriteString(url.QueryEscape(p.key))
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(p.value))
	}
	if q.Len() == 0 {
		return base + fragment
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
		if strings.HasSuffix(base, "?") || strings.HasSuffix(base, "&") {
			sep = ""
		}
	}
	return base + sep + q.String() + fragment
}

// withoutFixedParams removes bizcode and nfc_uid already present in base so
// the pair appended by Resolve is the only occurrence.
func withoutFixedParams(base string) string {
	rest, fragment := base, ""
	if i := strings.IndexByte(rest, '#'); i >= 0 {
		rest, fragment = rest[:i], rest[i:]
	}
	path, query, ok := strings.Cut(rest, "?")
	if !ok {
		return base
	}

	var kept []string
	removed := false
	for _, pair := range strings.Split(query, "&") {
		rawKey, _, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err == nil && (key == ParamBizcode || key == ParamNFCUID) {
			removed = true
			continue
		}
		if pair != "" {
			kept = append(kept, pair)
		}
	}
	if !removed {
		return base
	}
	if len(kept) == 0 {
		return path + fragment
	}
	return path + "?" + strings.Join(kept, "&") + fragment
}

// isWebURL accepts absolute http and https URLs with a host. Anything else
// (javascript:, data:, relative paths) is never used as a redirect target.
func isWebURL(target string) bool {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

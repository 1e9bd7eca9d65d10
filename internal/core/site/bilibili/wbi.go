package bilibili

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// mixinKeyEncTab reorders img_key+sub_key into the mixin key
var mixinKeyEncTab = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

const mixinKeyLen = 32

// KeyMaterial is the derived WBI signing secret
type KeyMaterial struct {
	MixinKey string
}

// KeyFetcher returns the two wbi asset URLs (img_url, sub_url)
type KeyFetcher func(ctx context.Context) (imgURL, subURL string, err error)

// Signer computes w_rid signatures for the wbi endpoints.
// Key material is fetched on first use and kept for the Signer's lifetime.
type Signer struct {
	mu    sync.Mutex
	key   *KeyMaterial
	fetch KeyFetcher
	now   func() time.Time
}

// NewSigner creates a Signer. now defaults to time.Now.
func NewSigner(fetch KeyFetcher, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{fetch: fetch, now: now}
}

// KeyMaterial returns the cached key, fetching it on first call
func (s *Signer) KeyMaterial(ctx context.Context) (*KeyMaterial, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.key != nil {
		return s.key, nil
	}
	if s.fetch == nil {
		return nil, fmt.Errorf("%w: no key source", ErrSigningUnavailable)
	}

	imgURL, subURL, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	key, err := DeriveKeyMaterial(imgURL, subURL)
	if err != nil {
		return nil, err
	}
	s.key = key
	return key, nil
}

// Invalidate drops the cached key so the next call refetches it
func (s *Signer) Invalidate() {
	s.mu.Lock()
	s.key = nil
	s.mu.Unlock()
}

// Sign returns a copy of params with wts and w_rid added
func (s *Signer) Sign(ctx context.Context, params url.Values) (url.Values, error) {
	key, err := s.KeyMaterial(ctx)
	if err != nil {
		return nil, err
	}
	return SignWithKey(params, key.MixinKey, s.now()), nil
}

// DeriveKeyMaterial builds the mixin key from the filename stems of the two asset URLs
func DeriveKeyMaterial(imgURL, subURL string) (*KeyMaterial, error) {
	imgKey := assetStem(imgURL)
	subKey := assetStem(subURL)
	if imgKey == "" || subKey == "" {
		return nil, fmt.Errorf("%w: wbi asset urls missing", ErrSigningUnavailable)
	}
	return mixinKey(imgKey + subKey)
}

func mixinKey(raw string) (*KeyMaterial, error) {
	if len(raw) < len(mixinKeyEncTab) {
		return nil, fmt.Errorf("%w: wbi key too short (%d chars)", ErrSigningUnavailable, len(raw))
	}
	var b strings.Builder
	b.Grow(len(mixinKeyEncTab))
	for _, i := range mixinKeyEncTab {
		b.WriteByte(raw[i])
	}
	return &KeyMaterial{MixinKey: b.String()[:mixinKeyLen]}, nil
}

// assetStem turns ".../bfs/wbi/7cd08494...077c.png" into "7cd08494...077c"
func assetStem(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	base := path.Base(p)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}

// SignWithKey is the deterministic core of Sign
func SignWithKey(params url.Values, mixin string, ts time.Time) url.Values {
	signed := url.Values{}
	for k, vs := range params {
		if len(vs) > 0 {
			signed.Set(k, vs[0])
		}
	}
	signed.Set("wts", strconv.FormatInt(ts.Unix(), 10))

	query := encodeWBIQuery(signed)
	sum := md5.Sum([]byte(query + mixin))
	signed.Set("w_rid", hex.EncodeToString(sum[:]))
	return signed
}

// EncodeSigned renders signed params in the exact order and encoding that was hashed,
// followed by w_rid.
func EncodeSigned(signed url.Values) string {
	rid := signed.Get("w_rid")
	rest := url.Values{}
	for k, vs := range signed {
		if k != "w_rid" {
			rest[k] = vs
		}
	}
	q := encodeWBIQuery(rest)
	if rid == "" {
		return q
	}
	return q + "&w_rid=" + rid
}

// encodeWBIQuery sorts by key and percent-encodes like the site's JS signer:
// values lose !'()* before encoding, space becomes %20.
func encodeWBIQuery(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(wbiEscape(k))
		b.WriteByte('=')
		b.WriteString(wbiEscape(stripWBIChars(params.Get(k))))
	}
	return b.String()
}

func stripWBIChars(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '!', '\'', '(', ')', '*':
			return -1
		}
		return r
	}, s)
}

const upperhex = "0123456789ABCDEF"

// wbiEscape keeps only RFC 3986 unreserved bytes
func wbiEscape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}

// fetchWBIImages reads the wbi asset URLs from the nav endpoint. Anonymous
// sessions get code -101 but still receive wbi_img, so the code is only
// fatal when the URLs are absent.
func (c *Client) fetchWBIImages(ctx context.Context) (string, string, error) {
	env, err := c.getJSON(ctx, c.apiBase+"/x/web-interface/nav", "")
	if err != nil {
		return "", "", err
	}

	var data struct {
		WbiImg struct {
			ImgURL string `json:"img_url"`
			SubURL string `json:"sub_url"`
		} `json:"wbi_img"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return "", "", fmt.Errorf("failed to parse nav data: %w", err)
		}
	}

	if data.WbiImg.ImgURL == "" || data.WbiImg.SubURL == "" {
		if apiErr := env.err(); apiErr != nil {
			return "", "", apiErr
		}
		return "", "", fmt.Errorf("nav response has no wbi_img")
	}
	return data.WbiImg.ImgURL, data.WbiImg.SubURL, nil
}

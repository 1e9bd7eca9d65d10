package bilibili

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// IDKind tags which form of identifier a VideoID holds
type IDKind int

const (
	KindBV IDKind = iota + 1
	KindAV
)

// VideoID is either a BV code or an av number
type VideoID struct {
	Kind IDKind
	BVID string
	AID  int64
}

var (
	bvPattern    = regexp.MustCompile(`BV[0-9A-Za-z]{10}`)
	avURLPattern = regexp.MustCompile(`(?i)(?:^|/)av(\d+)(?:[/?#]|$)`)
	digitsOnly   = regexp.MustCompile(`^\d+$`)
	pagePattern  = regexp.MustCompile(`[?&]p=(\d+)`)
)

// ParseVideoID extracts a video id from a bare code or any URL carrying one.
// av numbers are only recognized when acceptNumeric is set.
func ParseVideoID(raw string, acceptNumeric bool) (VideoID, error) {
	input := strings.TrimSpace(raw)

	if code := bvPattern.FindString(input); code != "" {
		return VideoID{Kind: KindBV, BVID: code}, nil
	}

	if acceptNumeric {
		var digits string
		switch {
		case digitsOnly.MatchString(input):
			digits = input
		default:
			if m := avURLPattern.FindStringSubmatch(input); m != nil {
				digits = m[1]
			}
		}
		if digits != "" {
			aid, err := strconv.ParseInt(digits, 10, 64)
			if err == nil && aid > 0 {
				return VideoID{Kind: KindAV, AID: aid}, nil
			}
		}
	}

	return VideoID{}, fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
}

// PageFromURL returns the p= query value of a watch-page URL, or 0
func PageFromURL(raw string) int {
	m := pagePattern.FindStringSubmatch(raw)
	if m == nil {
		return 0
	}
	p, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return p
}

func (id VideoID) String() string {
	if id.Kind == KindAV {
		return "av" + strconv.FormatInt(id.AID, 10)
	}
	return id.BVID
}

// query returns the id as a metadata query parameter
func (id VideoID) query() url.Values {
	v := url.Values{}
	if id.Kind == KindAV {
		v.Set("aid", strconv.FormatInt(id.AID, 10))
	} else {
		v.Set("bvid", id.BVID)
	}
	return v
}

// PlayParams returns the id as playurl parameters
func (id VideoID) PlayParams() url.Values {
	v := url.Values{}
	if id.Kind == KindAV {
		v.Set("avid", strconv.FormatInt(id.AID, 10))
	} else {
		v.Set("bvid", id.BVID)
	}
	return v
}

// MetadataURL builds the view API query URL against the given API base
func (id VideoID) MetadataURL(apiBase string) string {
	return strings.TrimRight(apiBase, "/") + "/x/web-interface/view?" + id.query().Encode()
}

// WatchURL is the canonical page of a part, used as Referer for that part's requests
func (id VideoID) WatchURL(page int) string {
	if page < 1 {
		page = 1
	}
	return fmt.Sprintf("%s/video/%s/?p=%d", SiteRoot, id, page)
}

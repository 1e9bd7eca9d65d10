package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/guiyumin/biliget/internal/core/media"
)

// Profile switches the optional parts of resolution
type Profile struct {
	// LegacyFallback tries the unsigned durl endpoint when dash yields nothing.
	LegacyFallback bool
	// AcceptNumericIDs lets ParseVideoID accept av numbers.
	AcceptNumericIDs bool
}

var (
	ProfileFull   = Profile{LegacyFallback: true, AcceptNumericIDs: true}
	ProfileBVOnly = Profile{}
)

// fnval 4048 = dash | hdr | 4k | dolby audio | dolby vision | 8k | av1
const dashFnval = "4048"

// codeSignatureRejected is returned when w_rid no longer matches the server's key
const codeSignatureRejected = -403

type dashTrack struct {
	ID         int
	BaseURL    string
	BackupURLs []string
	Bandwidth  int64
	Codecs     string
}

// UnmarshalJSON resolves the camelCase/snake_case URL aliases the API mixes
func (t *dashTrack) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           int      `json:"id"`
		BaseURL      string   `json:"baseUrl"`
		BaseURLAlt   string   `json:"base_url"`
		BackupURL    []string `json:"backupUrl"`
		BackupURLAlt []string `json:"backup_url"`
		Bandwidth    int64    `json:"bandwidth"`
		Codecs       string   `json:"codecs"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	t.ID = raw.ID
	t.Bandwidth = raw.Bandwidth
	t.Codecs = raw.Codecs
	t.BaseURL = raw.BaseURL
	if t.BaseURL == "" {
		t.BaseURL = raw.BaseURLAlt
	}
	t.BackupURLs = raw.BackupURL
	if len(t.BackupURLs) == 0 {
		t.BackupURLs = raw.BackupURLAlt
	}
	return nil
}

type dashData struct {
	Dash *struct {
		Video []dashTrack `json:"video"`
		Audio []dashTrack `json:"audio"`
	} `json:"dash"`
}

type legacyData struct {
	Durl []struct {
		URL       string   `json:"url"`
		BackupURL []string `json:"backup_url"`
		Size      int64    `json:"size"`
	} `json:"durl"`
}

// Resolve returns the streams to download for one part: the best dash video and
// audio tracks, or the legacy combined segments when dash is unavailable and the
// profile allows the fallback.
func (c *Client) Resolve(ctx context.Context, id VideoID, cid int64, quality int) ([]media.StreamDescriptor, error) {
	streams, err := c.resolveDash(ctx, id, cid, quality)
	if err != nil {
		c.log.Warnw("adaptive playurl failed", "id", id.String(), "cid", cid, "error", err)
	}
	if len(streams) > 0 {
		return streams, nil
	}

	if !c.profile.LegacyFallback {
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoStreams, err)
		}
		return nil, ErrNoStreams
	}

	c.log.Infow("falling back to legacy playurl", "id", id.String(), "cid", cid)
	streams, err = c.resolveLegacy(ctx, id, cid, quality)
	if err != nil {
		return nil, err
	}
	if len(streams) == 0 {
		return nil, ErrNoStreams
	}
	return streams, nil
}

func playParams(id VideoID, cid int64, quality int) url.Values {
	params := id.PlayParams()
	params.Set("cid", strconv.FormatInt(cid, 10))
	params.Set("qn", strconv.Itoa(quality))
	return params
}

func (c *Client) resolveDash(ctx context.Context, id VideoID, cid int64, quality int) ([]media.StreamDescriptor, error) {
	params := playParams(id, cid, quality)
	params.Set("fourk", "1")
	params.Set("fnver", "0")
	params.Set("fnval", dashFnval)

	// One retry with a fresh key if the server rejects the signature
	for attempt := 0; ; attempt++ {
		signed, err := c.signer.Sign(ctx, params)
		if err != nil {
			return nil, err
		}

		env, err := c.getJSON(ctx, c.apiBase+"/x/player/wbi/playurl?"+EncodeSigned(signed), "")
		if err != nil {
			return nil, err
		}
		if err := env.err(); err != nil {
			var apiErr *APIError
			if attempt == 0 && errors.As(err, &apiErr) && apiErr.Code == codeSignatureRejected {
				c.signer.Invalidate()
				continue
			}
			return nil, err
		}

		var data dashData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, fmt.Errorf("failed to parse dash data: %w", err)
		}
		if data.Dash == nil {
			return nil, nil
		}

		var streams []media.StreamDescriptor
		if best, ok := selectBest(data.Dash.Video); ok {
			streams = append(streams, best.descriptor(media.KindVideo))
		}
		if best, ok := selectBest(data.Dash.Audio); ok {
			streams = append(streams, best.descriptor(media.KindAudio))
		}
		return streams, nil
	}
}

// selectBest picks the highest bandwidth track with a URL; the first one wins ties
func selectBest(tracks []dashTrack) (dashTrack, bool) {
	var best dashTrack
	found := false
	for _, t := range tracks {
		if t.BaseURL == "" {
			continue
		}
		if !found || t.Bandwidth > best.Bandwidth {
			best = t
			found = true
		}
	}
	return best, found
}

func (t dashTrack) descriptor(kind media.Kind) media.StreamDescriptor {
	return media.StreamDescriptor{
		URL:        t.BaseURL,
		BackupURLs: t.BackupURLs,
		Kind:       kind,
		Quality:    t.ID,
		Bandwidth:  t.Bandwidth,
	}
}

func (c *Client) resolveLegacy(ctx context.Context, id VideoID, cid int64, quality int) ([]media.StreamDescriptor, error) {
	params := playParams(id, cid, quality)

	env, err := c.getJSON(ctx, c.apiBase+"/x/player/playurl?"+params.Encode(), "")
	if err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}

	var data legacyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse durl data: %w", err)
	}

	streams := make([]media.StreamDescriptor, 0, len(data.Durl))
	for _, d := range data.Durl {
		if d.URL == "" {
			continue
		}
		streams = append(streams, media.StreamDescriptor{
			URL:        d.URL,
			BackupURLs: d.BackupURL,
			Kind:       media.KindCombined,
			Quality:    quality,
		})
	}
	return streams, nil
}

package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
)

// VideoMetadata describes a video and its parts in platform order
type VideoMetadata struct {
	ID    VideoID
	Title string
	Owner string
	Parts []PartInfo
}

// PartInfo is one independently downloadable segment of a video
type PartInfo struct {
	Page  int
	Label string
	CID   int64
}

// DisplayTitle is the part's label, else the video title, else "Part-<page>"
func (p PartInfo) DisplayTitle(videoTitle string) string {
	if p.Label != "" {
		return p.Label
	}
	if videoTitle != "" {
		return videoTitle
	}
	return fmt.Sprintf("Part-%d", p.Page)
}

// Part returns the part with the given 1-based page number
func (m *VideoMetadata) Part(page int) (PartInfo, bool) {
	for _, p := range m.Parts {
		if p.Page == page {
			return p, true
		}
	}
	return PartInfo{}, false
}

type viewData struct {
	BVID  string `json:"bvid"`
	AID   int64  `json:"aid"`
	Title string `json:"title"`
	Owner struct {
		Name string `json:"name"`
	} `json:"owner"`
	Pages []struct {
		CID  int64  `json:"cid"`
		Page int    `json:"page"`
		Part string `json:"part"`
	} `json:"pages"`
}

// FetchMetadata resolves an id into title, owner and parts
func (c *Client) FetchMetadata(ctx context.Context, id VideoID) (*VideoMetadata, error) {
	env, err := c.getJSON(ctx, id.MetadataURL(c.apiBase), "")
	if err != nil {
		return nil, err
	}
	if err := env.err(); err != nil {
		return nil, err
	}

	var data viewData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse video info: %w", err)
	}

	meta := &VideoMetadata{
		ID:    id,
		Title: data.Title,
		Owner: data.Owner.Name,
		Parts: make([]PartInfo, 0, len(data.Pages)),
	}
	for i, p := range data.Pages {
		page := p.Page
		if page == 0 {
			page = i + 1
		}
		meta.Parts = append(meta.Parts, PartInfo{Page: page, Label: p.Part, CID: p.CID})
	}

	c.log.Debugw("fetched video info", "id", id.String(), "title", meta.Title, "parts", len(meta.Parts))
	return meta, nil
}

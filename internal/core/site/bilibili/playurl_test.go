package bilibili

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guiyumin/biliget/internal/core/media"
)

var testID = VideoID{Kind: KindBV, BVID: "BV1xx411c7mD"}

const dashBody = `{"code":0,"message":"0","data":{"quality":80,"dash":{
	"video":[
		{"id":64,"baseUrl":"https://cdn/v-500.m4s","backupUrl":["https://bak/v-500.m4s"],"bandwidth":500},
		{"id":80,"base_url":"https://cdn/v-1200.m4s","backup_url":["https://bak1/v-1200.m4s","https://bak2/v-1200.m4s"],"bandwidth":1200},
		{"id":80,"baseUrl":"https://cdn/v-900.m4s","bandwidth":900}
	],
	"audio":[
		{"id":30216,"baseUrl":"https://cdn/a-64k.m4s","bandwidth":64000},
		{"id":30280,"baseUrl":"https://cdn/a-192k.m4s","backupUrl":["https://bak/a-192k.m4s"],"bandwidth":192000}
	]}}}`

const legacyBody = `{"code":0,"message":"0","data":{"quality":80,"durl":[
	{"order":1,"url":"https://cdn/seg1.flv","backup_url":["https://bak/seg1.flv"],"size":100}
]}}`

func TestResolve_DashSelectsMaxBandwidth(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", dashBody)

	streams, err := api.client().Resolve(context.Background(), testID, 279786, 80)
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Equal(t, media.StreamDescriptor{
		URL:        "https://cdn/v-1200.m4s",
		BackupURLs: []string{"https://bak1/v-1200.m4s", "https://bak2/v-1200.m4s"},
		Kind:       media.KindVideo,
		Quality:    80,
		Bandwidth:  1200,
	}, streams[0])
	assert.Equal(t, media.KindAudio, streams[1].Kind)
	assert.Equal(t, "https://cdn/a-192k.m4s", streams[1].URL)
	assert.Equal(t, []string{"https://bak/a-192k.m4s"}, streams[1].BackupURLs)

	assert.Empty(t, api.requestsTo("/x/player/playurl"))
}

func TestResolve_SignedRequest(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", dashBody)

	_, err := api.client().Resolve(context.Background(), testID, 12345, 80)
	require.NoError(t, err)

	reqs := api.requestsTo("/x/player/wbi/playurl")
	require.Len(t, reqs, 1)
	q := reqs[0].URL.Query()
	assert.Equal(t, "12345", q.Get("cid"))
	assert.Equal(t, "BV1xx411c7mD", q.Get("bvid"))
	assert.Equal(t, "80", q.Get("qn"))
	assert.Equal(t, "1", q.Get("fourk"))
	assert.Equal(t, "0", q.Get("fnver"))
	assert.Equal(t, "4048", q.Get("fnval"))
	assert.Equal(t, "1700000000", q.Get("wts"))
	assert.Equal(t, "abce128be196975874552678fbcf498b", q.Get("w_rid"))
	assert.Equal(t, SiteRoot, reqs[0].Header.Get("Origin"))
}

func TestResolve_NavFetchedOnce(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", dashBody)
	c := api.client()

	for i := 0; i < 3; i++ {
		_, err := c.Resolve(context.Background(), testID, int64(i+1), 80)
		require.NoError(t, err)
	}
	assert.Len(t, api.requestsTo("/x/web-interface/nav"), 1)
}

func TestResolve_FallsBackToLegacy(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", `{"code":-400,"message":"请求错误"}`)
	api.on("/x/player/playurl", legacyBody)

	streams, err := api.client().Resolve(context.Background(), testID, 279786, 64)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Equal(t, media.KindCombined, streams[0].Kind)
	assert.Equal(t, 64, streams[0].Quality)
	assert.Equal(t, "https://cdn/seg1.flv", streams[0].URL)

	reqs := api.requestsTo("/x/player/playurl")
	require.Len(t, reqs, 1)
	assert.Empty(t, reqs[0].URL.Query().Get("w_rid"))
	assert.Equal(t, "64", reqs[0].URL.Query().Get("qn"))
}

func TestResolve_SigningUnavailableForcesLegacy(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", `{"code":-101,"message":"账号未登录","data":{"isLogin":false}}`)
	api.on("/x/player/playurl", legacyBody)

	streams, err := api.client().Resolve(context.Background(), testID, 279786, 80)
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Empty(t, api.requestsTo("/x/player/wbi/playurl"))
}

func TestResolve_NoDashWithoutFallback(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", `{"code":0,"data":{"quality":80}}`)
	api.on("/x/player/playurl", legacyBody)

	_, err := api.client(WithProfile(ProfileBVOnly)).Resolve(context.Background(), testID, 1, 80)
	assert.ErrorIs(t, err, ErrNoStreams)
	assert.Empty(t, api.requestsTo("/x/player/playurl"))
}

func TestResolve_LegacyAPIError(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", `{"code":0,"data":{}}`)
	api.on("/x/player/playurl", `{"code":-404,"message":"啥都木有"}`)

	_, err := api.client().Resolve(context.Background(), testID, 1, 80)
	assert.ErrorIs(t, err, ErrAPI)
}

func TestResolve_SignatureRejectedRefetchesKey(t *testing.T) {
	api := newFakeAPI(t)
	api.on("/x/web-interface/nav", navBody)
	api.on("/x/player/wbi/playurl", `{"code":-403,"message":"访问权限不足"}`, dashBody)

	streams, err := api.client().Resolve(context.Background(), testID, 1, 80)
	require.NoError(t, err)
	assert.Len(t, streams, 2)
	assert.Len(t, api.requestsTo("/x/web-interface/nav"), 2)
	assert.Len(t, api.requestsTo("/x/player/wbi/playurl"), 2)
}

func TestSelectBest_TieKeepsFirst(t *testing.T) {
	tracks := []dashTrack{
		{BaseURL: "first", Bandwidth: 700},
		{BaseURL: "second", Bandwidth: 700},
		{BaseURL: "", Bandwidth: 9000},
	}
	best, ok := selectBest(tracks)
	require.True(t, ok)
	assert.Equal(t, "first", best.BaseURL)

	_, ok = selectBest(nil)
	assert.False(t, ok)
}

func TestDashTrack_AliasResolution(t *testing.T) {
	var tr dashTrack
	require.NoError(t, json.Unmarshal([]byte(`{"id":80,"base_url":"a","backup_url":["b"],"bandwidth":5}`), &tr))
	assert.Equal(t, "a", tr.BaseURL)
	assert.Equal(t, []string{"b"}, tr.BackupURLs)

	require.NoError(t, json.Unmarshal([]byte(`{"id":80,"baseUrl":"c","base_url":"a","backupUrl":["d"]}`), &tr))
	assert.Equal(t, "c", tr.BaseURL)
	assert.Equal(t, []string{"d"}, tr.BackupURLs)
}
